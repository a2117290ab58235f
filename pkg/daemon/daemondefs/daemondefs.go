// Package daemondefs contains the wire types of the middleware API.
//
// It is a separate package so that packages that only depend on the API do
// not need to depend on the client or server implementation.
package daemondefs

// Methods exposed by the middleware.
const (
	MethodQuery      = "query"
	MethodTaskSubmit = "task.submit"
	MethodTaskWait   = "task.wait"
	MethodTaskStatus = "task.status"
	MethodTaskAbort  = "task.abort"
)

// Notifications pushed by the middleware.
const (
	NotifTaskProgress  = "task.progress"
	NotifTaskDone      = "task.done"
	NotifEntityChanged = "entity.changed"
)

// QueryParams is the parameter of the query method.
type QueryParams struct {
	Collection string       `json:"collection"`
	// Filters are (field, operator, value) triples. All triples must
	// match for a row to be included.
	Filters [][3]any     `json:"filters,omitempty"`
	Options QueryOptions `json:"options,omitempty"`
}

// QueryOptions modify how query results are materialized, applied after
// filtering in the order: order_by, offset, limit, select.
type QueryOptions struct {
	Limit   int      `json:"limit,omitempty"`
	Offset  int      `json:"offset,omitempty"`
	OrderBy []string `json:"order_by,omitempty"`
	Select  []string `json:"select,omitempty"`
}

// TaskParams is the parameter of the task.submit method.
type TaskParams struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// TaskRef identifies a task in task.wait, task.status and task.abort.
type TaskRef struct {
	ID string `json:"id"`
}

// Task states.
const (
	TaskRunning = "running"
	TaskDone    = "done"
	TaskFailed  = "failed"
	TaskAborted = "aborted"
)

// TaskStatus describes a submitted task. It is the result of task.wait and
// task.status and the payload of the task.done notification.
type TaskStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
	Result   any    `json:"result,omitempty"`
}

// TaskProgress is the payload of the task.progress notification.
type TaskProgress struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// Entity change operations.
const (
	ChangeCreate = "create"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// EntityChange is the payload of the entity.changed notification.
type EntityChange struct {
	Collection string `json:"collection"`
	Op         string `json:"op"`
	ID         any    `json:"id,omitempty"`
}
