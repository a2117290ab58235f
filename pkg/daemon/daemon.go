package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/coralstor/coral/pkg/prog"
)

// Program is the middleware simulator subprogram. It serves the middleware
// protocol on a unix socket from an in-memory dataset, for developing and
// testing the shell without a real appliance.
var Program prog.Program = program{}

type program struct{}

func (program) Run(fds [3]*os.File, f *prog.Flags, args []string) error {
	if !f.Daemon {
		return prog.ErrNotSuitable
	}
	if len(args) > 0 {
		return prog.BadUsage("arguments are not allowed with -daemon")
	}
	if f.Sock == "" {
		return prog.BadUsage("-daemon requires -sock")
	}
	ln, err := net.Listen("unix", f.Sock)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", f.Sock, err)
	}
	defer os.Remove(f.Sock)
	logger.Println("listening on", f.Sock)

	fx := NewFixture()
	fx.StepDelay = 100 * time.Millisecond
	SeedDemo(fx)
	fx.Serve(context.Background(), ln)
	return nil
}

// SeedDemo populates a Fixture with a small appliance dataset and the tasks
// that operate on it.
func SeedDemo(fx *Fixture) {
	fx.SetCollection("disk", []map[string]any{
		{"name": "da0", "size": 2199023255552, "model": "ST2000DM008", "pool": "tank"},
		{"name": "da1", "size": 2199023255552, "model": "ST2000DM008", "pool": "tank"},
		{"name": "da2", "size": 4398046511104, "model": "WD40EFRX", "pool": ""},
		{"name": "da3", "size": 4398046511104, "model": "WD40EFRX", "pool": ""},
	})
	fx.SetCollection("volume", []map[string]any{
		{"name": "tank", "size": 4398046511104, "used": 1099511627776, "status": "healthy"},
	})
	fx.SetCollection("share", []map[string]any{
		{"name": "media", "path": "/mnt/tank/media", "protocol": "smb", "enabled": true},
	})
	fx.SetCollection("account", []map[string]any{
		{"name": "root", "uid": 0, "shell": "/bin/sh"},
	})

	fx.RegisterTask("volume.create", func(fx *Fixture, args map[string]any) (any, error) {
		name, _ := args["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("volume.create: missing name")
		}
		row := map[string]any{
			"name": name, "size": 0, "used": 0, "status": "healthy"}
		if size, ok := args["size"]; ok {
			row["size"] = size
		}
		fx.AddRow("volume", row)
		return name, nil
	})
	fx.RegisterTask("volume.delete", func(fx *Fixture, args map[string]any) (any, error) {
		name, _ := args["name"].(string)
		if fx.RemoveRows("volume", "name", name) == 0 {
			return nil, fmt.Errorf("volume.delete: no volume %q", name)
		}
		return nil, nil
	})
	fx.RegisterTask("share.create", func(fx *Fixture, args map[string]any) (any, error) {
		name, _ := args["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("share.create: missing name")
		}
		row := map[string]any{"name": name, "enabled": true}
		for _, field := range []string{"path", "protocol"} {
			if v, ok := args[field]; ok {
				row[field] = v
			}
		}
		fx.AddRow("share", row)
		return name, nil
	})
	fx.RegisterTask("share.delete", func(fx *Fixture, args map[string]any) (any, error) {
		name, _ := args["name"].(string)
		if fx.RemoveRows("share", "name", name) == 0 {
			return nil, fmt.Errorf("share.delete: no share %q", name)
		}
		return nil, nil
	})
	fx.RegisterTask("system.reboot", func(_ *Fixture, _ map[string]any) (any, error) {
		return nil, nil
	})
}

// DialFixture creates a Fixture and a Client connected to it in process.
// The returned client receives notifications through h.
func DialFixture(ctx context.Context, fx *Fixture, h NotifyHandlers) *Client {
	serverSide, clientSide := net.Pipe()
	fx.ServeConn(ctx, serverSide)
	return NewClient(ctx, clientSide, h)
}
