// Package daemon implements the middleware RPC protocol of the appliance,
// both the client used by the shell and an in-memory fixture server.
package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/coralstor/coral/pkg/daemon/daemondefs"
	"github.com/coralstor/coral/pkg/logutil"
)

var logger = logutil.GetLogger("[daemon] ")

// NotifyHandlers holds callbacks for notifications pushed by the
// middleware. Nil callbacks drop the corresponding notification. Callbacks
// are invoked from the connection's read loop and must not block.
type NotifyHandlers struct {
	TaskProgress  func(daemondefs.TaskProgress)
	TaskDone      func(daemondefs.TaskStatus)
	EntityChanged func(daemondefs.EntityChange)
}

// Client provides access to the middleware.
type Client struct {
	conn *jsonrpc2.Conn

	mu      sync.Mutex
	waiting map[string]struct{}
}

// Dial connects to the middleware socket at sockpath.
func Dial(ctx context.Context, sockpath string, h NotifyHandlers) (*Client, error) {
	conn, err := net.Dial("unix", sockpath)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, conn, h), nil
}

// NewClient creates a Client speaking the middleware protocol over rwc.
func NewClient(ctx context.Context, rwc io.ReadWriteCloser, h NotifyHandlers) *Client {
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(rwc, jsonrpc2.PlainObjectCodec{}),
		notifyHandler(h))
	return &Client{conn: conn, waiting: make(map[string]struct{})}
}

func notifyHandler(h NotifyHandlers) jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		if !req.Notif || req.Params == nil {
			return nil, nil
		}
		switch req.Method {
		case daemondefs.NotifTaskProgress:
			if h.TaskProgress != nil {
				var p daemondefs.TaskProgress
				if json.Unmarshal(*req.Params, &p) == nil {
					h.TaskProgress(p)
				}
			}
		case daemondefs.NotifTaskDone:
			if h.TaskDone != nil {
				var s daemondefs.TaskStatus
				if json.Unmarshal(*req.Params, &s) == nil {
					h.TaskDone(s)
				}
			}
		case daemondefs.NotifEntityChanged:
			if h.EntityChanged != nil {
				var c daemondefs.EntityChange
				if json.Unmarshal(*req.Params, &c) == nil {
					h.EntityChanged(c)
				}
			}
		default:
			logger.Println("unknown notification:", req.Method)
		}
		return nil, nil
	})
}

// Query returns the rows of a collection matching all filter triples, with
// the options applied server-side.
func (c *Client) Query(ctx context.Context, collection string, filters [][3]any, opts daemondefs.QueryOptions) ([]map[string]any, error) {
	var rows []map[string]any
	err := c.conn.Call(ctx, daemondefs.MethodQuery,
		daemondefs.QueryParams{Collection: collection, Filters: filters, Options: opts}, &rows)
	return rows, err
}

// SubmitTask submits a named task and returns its ID without waiting for it
// to finish.
func (c *Client) SubmitTask(ctx context.Context, name string, args map[string]any) (string, error) {
	var id string
	err := c.conn.Call(ctx, daemondefs.MethodTaskSubmit,
		daemondefs.TaskParams{Name: name, Args: args}, &id)
	return id, err
}

// WaitTask blocks until the task finishes or ctx is canceled. While it
// blocks, the task ID appears in Waiting, so that the shell can abort or
// detach it on a signal.
func (c *Client) WaitTask(ctx context.Context, id string) (daemondefs.TaskStatus, error) {
	c.mu.Lock()
	c.waiting[id] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiting, id)
		c.mu.Unlock()
	}()
	var status daemondefs.TaskStatus
	err := c.conn.Call(ctx, daemondefs.MethodTaskWait, daemondefs.TaskRef{ID: id}, &status)
	return status, err
}

// Waiting returns the IDs of the tasks currently blocked in WaitTask.
func (c *Client) Waiting() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.waiting))
	for id := range c.waiting {
		ids = append(ids, id)
	}
	return ids
}

// TaskStatus returns the current status of a task without waiting.
func (c *Client) TaskStatus(ctx context.Context, id string) (daemondefs.TaskStatus, error) {
	var status daemondefs.TaskStatus
	err := c.conn.Call(ctx, daemondefs.MethodTaskStatus, daemondefs.TaskRef{ID: id}, &status)
	return status, err
}

// AbortTask requests that a running task be aborted. Completed tasks are
// left alone.
func (c *Client) AbortTask(ctx context.Context, id string) error {
	return c.conn.Call(ctx, daemondefs.MethodTaskAbort, daemondefs.TaskRef{ID: id}, nil)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
