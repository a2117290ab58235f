// Package shell is the entry point for the terminal interface of coral.
package shell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coralstor/coral/pkg/appliance"
	"github.com/coralstor/coral/pkg/config"
	"github.com/coralstor/coral/pkg/daemon"
	"github.com/coralstor/coral/pkg/eval"
	"github.com/coralstor/coral/pkg/logutil"
	"github.com/coralstor/coral/pkg/prog"
	"github.com/coralstor/coral/pkg/store"
)

var logger = logutil.GetLogger("[shell] ")

// Program is the shell subprogram. It is suitable for any invocation, so it
// must come last in the composite.
var Program prog.Program = program{}

type program struct{}

func (program) Run(fds [3]*os.File, f *prog.Flags, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(configPath(f))
	if err != nil {
		fmt.Fprintln(fds[2], "Warning:", err)
	}

	var st store.DBStore
	if dbPath := dbPath(f); dbPath != "" {
		st, err = store.NewStore(dbPath)
		if err != nil {
			fmt.Fprintln(fds[2], "Warning: cannot open history database:", err)
			fmt.Fprintln(fds[2], "History and persisted variables are disabled.")
			st = nil
		} else {
			defer st.Close()
		}
	}

	console := NewConsole(fds[1])
	sess := &session{cfg: cfg, console: console, store: st}

	sockpath := cfg.Address
	if f.Sock != "" {
		sockpath = f.Sock
	}
	client, err := daemon.Dial(ctx, sockpath, sess.notifyHandlers())
	var root eval.Namespace
	if err != nil {
		fmt.Fprintln(fds[2], "Warning: cannot connect to middleware:", err)
		fmt.Fprintln(fds[2], "Appliance namespaces are unavailable.")
		root = appliance.NewStatic("/")
	} else {
		defer client.Close()
		root = appliance.BuildRoot(client, cfg.Tasks.Blocking)
	}
	sess.client = client

	ev := eval.NewEvaler(root, console)
	sess.ev = ev
	sess.registerBuiltins()
	sess.loadVars()

	if len(args) > 0 {
		return prog.Exit(script(sess, fds, args, f.CodeInArg))
	}
	return prog.Exit(interact(sess, fds))
}

func configPath(f *prog.Flags) string {
	if f.Config != "" {
		return f.Config
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "coral", "coral.yaml")
}

func dbPath(f *prog.Flags) string {
	if f.DB != "" {
		return f.DB
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	if err := os.MkdirAll(filepath.Join(dir, "coral"), 0o700); err != nil {
		return ""
	}
	return filepath.Join(dir, "coral", "db")
}
