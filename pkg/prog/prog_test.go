package prog_test

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/coralstor/coral/pkg/prog"
	"github.com/coralstor/coral/pkg/prog/progtest"
)

type testProgram struct {
	run func(fds [3]*os.File, f *prog.Flags, args []string) error
}

func (p testProgram) Run(fds [3]*os.File, f *prog.Flags, args []string) error {
	return p.run(fds, f, args)
}

func TestRun_Help(t *testing.T) {
	p := testProgram{run: func([3]*os.File, *prog.Flags, []string) error { return nil }}
	out := progtest.Run(t, p, "-help")
	if out.Exit != 0 || !strings.Contains(out.Stdout, "Usage: coral") {
		t.Errorf("got (%d, %q)", out.Exit, out.Stdout)
	}
}

func TestRun_BadFlag(t *testing.T) {
	p := testProgram{run: func([3]*os.File, *prog.Flags, []string) error { return nil }}
	out := progtest.Run(t, p, "-bad-flag")
	if out.Exit != 2 || !strings.Contains(out.Stderr, "Usage: coral") {
		t.Errorf("got (%d, %q)", out.Exit, out.Stderr)
	}
}

func TestRun_BadUsage(t *testing.T) {
	p := testProgram{run: func([3]*os.File, *prog.Flags, []string) error {
		return prog.BadUsage("lorem ipsum")
	}}
	out := progtest.Run(t, p)
	if out.Exit != 2 || !strings.Contains(out.Stderr, "lorem ipsum") {
		t.Errorf("got (%d, %q)", out.Exit, out.Stderr)
	}
}

func TestRun_Exit(t *testing.T) {
	p := testProgram{run: func([3]*os.File, *prog.Flags, []string) error {
		return prog.Exit(3)
	}}
	out := progtest.Run(t, p)
	if out.Exit != 3 || out.Stderr != "" {
		t.Errorf("got (%d, %q)", out.Exit, out.Stderr)
	}
}

func TestComposite(t *testing.T) {
	skip := testProgram{run: func([3]*os.File, *prog.Flags, []string) error {
		return prog.ErrNotSuitable
	}}
	hello := testProgram{run: func(fds [3]*os.File, _ *prog.Flags, _ []string) error {
		fmt.Fprintln(fds[1], "hello")
		return nil
	}}
	out := progtest.Run(t, prog.Composite(skip, hello))
	if out.Exit != 0 || out.Stdout != "hello\n" {
		t.Errorf("got (%d, %q)", out.Exit, out.Stdout)
	}
}

func TestComposite_NoSuitable(t *testing.T) {
	skip := testProgram{run: func([3]*os.File, *prog.Flags, []string) error {
		return prog.ErrNotSuitable
	}}
	out := progtest.Run(t, prog.Composite(skip, skip))
	if out.Exit != 2 {
		t.Errorf("got exit %d, want 2", out.Exit)
	}
}
