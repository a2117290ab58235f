package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/coralstor/coral/pkg/daemon/daemondefs"
)

// TaskFunc is the implementation of a named task in a Fixture. It runs
// after the progress steps have been emitted; its return value becomes the
// task result.
type TaskFunc func(fx *Fixture, args map[string]any) (any, error)

// Fixture is an in-memory middleware server. It serves queries from seeded
// collections and runs submitted tasks on goroutines, pushing progress and
// change notifications to every connected client.
type Fixture struct {
	// StepDelay is the pause between the progress notifications of a
	// running task.
	StepDelay time.Duration

	mu          sync.Mutex
	collections map[string][]map[string]any
	taskFuncs   map[string]TaskFunc
	tasks       map[string]*fixtureTask
	conns       map[*jsonrpc2.Conn]struct{}
}

type fixtureTask struct {
	status daemondefs.TaskStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFixture creates a Fixture with no collections and no tasks.
func NewFixture() *Fixture {
	return &Fixture{
		StepDelay:   time.Millisecond,
		collections: make(map[string][]map[string]any),
		taskFuncs:   make(map[string]TaskFunc),
		tasks:       make(map[string]*fixtureTask),
		conns:       make(map[*jsonrpc2.Conn]struct{}),
	}
}

// SetCollection replaces the rows of a collection.
func (fx *Fixture) SetCollection(name string, rows []map[string]any) {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	fx.collections[name] = rows
}

// AddRow appends a row to a collection and pushes an entity.changed
// notification.
func (fx *Fixture) AddRow(collection string, row map[string]any) {
	fx.mu.Lock()
	fx.collections[collection] = append(fx.collections[collection], row)
	fx.mu.Unlock()
	fx.NotifyChange(daemondefs.EntityChange{
		Collection: collection, Op: daemondefs.ChangeCreate, ID: row["name"]})
}

// RemoveRows deletes the rows of a collection whose field equals value and
// pushes an entity.changed notification for each.
func (fx *Fixture) RemoveRows(collection, field string, value any) int {
	fx.mu.Lock()
	var kept []map[string]any
	var removed []map[string]any
	for _, row := range fx.collections[collection] {
		if eqValue(row[field], value) {
			removed = append(removed, row)
		} else {
			kept = append(kept, row)
		}
	}
	fx.collections[collection] = kept
	fx.mu.Unlock()
	for _, row := range removed {
		fx.NotifyChange(daemondefs.EntityChange{
			Collection: collection, Op: daemondefs.ChangeDelete, ID: row["name"]})
	}
	return len(removed)
}

// RegisterTask binds a task name to its implementation. Submitting an
// unregistered task name succeeds and completes with a nil result.
func (fx *Fixture) RegisterTask(name string, fn TaskFunc) {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	fx.taskFuncs[name] = fn
}

// NotifyChange pushes an entity.changed notification to all clients.
func (fx *Fixture) NotifyChange(c daemondefs.EntityChange) {
	fx.broadcast(daemondefs.NotifEntityChanged, c)
}

// ServeConn serves the middleware protocol over rwc until the peer
// disconnects.
func (fx *Fixture) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) *jsonrpc2.Conn {
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(rwc, jsonrpc2.PlainObjectCodec{}),
		jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(fx.handle)))
	fx.mu.Lock()
	fx.conns[conn] = struct{}{}
	fx.mu.Unlock()
	go func() {
		<-conn.DisconnectNotify()
		fx.mu.Lock()
		delete(fx.conns, conn)
		fx.mu.Unlock()
	}()
	return conn
}

// Serve accepts connections from ln until it is closed.
func (fx *Fixture) Serve(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Println("stopped accepting:", err)
			return
		}
		fx.ServeConn(ctx, conn)
	}
}

func (fx *Fixture) broadcast(method string, payload any) {
	fx.mu.Lock()
	conns := make([]*jsonrpc2.Conn, 0, len(fx.conns))
	for conn := range fx.conns {
		conns = append(conns, conn)
	}
	fx.mu.Unlock()
	for _, conn := range conns {
		if err := conn.Notify(context.Background(), method, payload); err != nil {
			logger.Printf("notify %s: %v", method, err)
		}
	}
}

var errInvalidParams = &jsonrpc2.Error{
	Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}

func (fx *Fixture) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if req.Params == nil {
		return nil, errInvalidParams
	}
	switch req.Method {
	case daemondefs.MethodQuery:
		var params daemondefs.QueryParams
		if json.Unmarshal(*req.Params, &params) != nil {
			return nil, errInvalidParams
		}
		return fx.query(params)
	case daemondefs.MethodTaskSubmit:
		var params daemondefs.TaskParams
		if json.Unmarshal(*req.Params, &params) != nil {
			return nil, errInvalidParams
		}
		return fx.submit(params), nil
	case daemondefs.MethodTaskWait:
		var ref daemondefs.TaskRef
		if json.Unmarshal(*req.Params, &ref) != nil {
			return nil, errInvalidParams
		}
		return fx.wait(ctx, ref.ID)
	case daemondefs.MethodTaskStatus:
		var ref daemondefs.TaskRef
		if json.Unmarshal(*req.Params, &ref) != nil {
			return nil, errInvalidParams
		}
		return fx.taskStatus(ref.ID)
	case daemondefs.MethodTaskAbort:
		var ref daemondefs.TaskRef
		if json.Unmarshal(*req.Params, &ref) != nil {
			return nil, errInvalidParams
		}
		return nil, fx.abort(ref.ID)
	default:
		return nil, &jsonrpc2.Error{
			Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	}
}

func (fx *Fixture) query(params daemondefs.QueryParams) ([]map[string]any, error) {
	fx.mu.Lock()
	rows, ok := fx.collections[params.Collection]
	fx.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", params.Collection)
	}
	return applyQuery(rows, params.Filters, params.Options)
}

func (fx *Fixture) submit(params daemondefs.TaskParams) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	t := &fixtureTask{
		status: daemondefs.TaskStatus{
			ID: id, Name: params.Name, State: daemondefs.TaskRunning},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	fx.mu.Lock()
	fx.tasks[id] = t
	fn := fx.taskFuncs[params.Name]
	fx.mu.Unlock()
	go fx.run(ctx, t, fn, params.Args)
	return id
}

func (fx *Fixture) run(ctx context.Context, t *fixtureTask, fn TaskFunc, args map[string]any) {
	defer close(t.done)
	for _, progress := range []int{25, 50, 75} {
		select {
		case <-time.After(fx.StepDelay):
		case <-ctx.Done():
			fx.finish(t, func(s *daemondefs.TaskStatus) {
				s.State = daemondefs.TaskAborted
				s.Error = "aborted"
			})
			return
		}
		fx.mu.Lock()
		t.status.Progress = progress
		p := daemondefs.TaskProgress{
			ID: t.status.ID, Name: t.status.Name, Progress: progress}
		fx.mu.Unlock()
		fx.broadcast(daemondefs.NotifTaskProgress, p)
	}

	var result any
	var err error
	if fn != nil {
		result, err = fn(fx, args)
	}
	fx.finish(t, func(s *daemondefs.TaskStatus) {
		s.Progress = 100
		if err != nil {
			s.State = daemondefs.TaskFailed
			s.Error = err.Error()
		} else {
			s.State = daemondefs.TaskDone
			s.Result = result
		}
	})
}

func (fx *Fixture) finish(t *fixtureTask, mutate func(*daemondefs.TaskStatus)) {
	fx.mu.Lock()
	mutate(&t.status)
	status := t.status
	fx.mu.Unlock()
	fx.broadcast(daemondefs.NotifTaskDone, status)
}

func (fx *Fixture) wait(ctx context.Context, id string) (daemondefs.TaskStatus, error) {
	fx.mu.Lock()
	t, ok := fx.tasks[id]
	fx.mu.Unlock()
	if !ok {
		return daemondefs.TaskStatus{}, fmt.Errorf("unknown task %q", id)
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		return daemondefs.TaskStatus{}, ctx.Err()
	}
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return t.status, nil
}

func (fx *Fixture) taskStatus(id string) (daemondefs.TaskStatus, error) {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	t, ok := fx.tasks[id]
	if !ok {
		return daemondefs.TaskStatus{}, fmt.Errorf("unknown task %q", id)
	}
	return t.status, nil
}

func (fx *Fixture) abort(id string) error {
	fx.mu.Lock()
	t, ok := fx.tasks[id]
	fx.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task %q", id)
	}
	t.cancel()
	return nil
}
