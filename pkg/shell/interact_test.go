package shell

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/coralstor/coral/pkg/appliance"
	"github.com/coralstor/coral/pkg/config"
	"github.com/coralstor/coral/pkg/eval"
	"github.com/coralstor/coral/pkg/must"
	"github.com/coralstor/coral/pkg/store"
)

// runInteract feeds input to a REPL session without a middleware
// connection and returns the console output, the stderr output and the
// exit status.
func runInteract(t *testing.T, st store.DBStore, input string) (string, string, int) {
	t.Helper()
	var out bytes.Buffer
	console := NewConsole(&out)
	sess := &session{cfg: config.Default(), console: console, store: st}
	sess.ev = eval.NewEvaler(appliance.NewStatic("/"), console)
	sess.registerBuiltins()
	sess.loadVars()

	stdin, stdinW := must.OK2(os.Pipe())
	defer stdin.Close()
	errR, errW := must.OK2(os.Pipe())
	go func() {
		stdinW.WriteString(input)
		stdinW.Close()
	}()

	exit := interact(sess, [3]*os.File{stdin, nil, errW})
	errW.Close()
	stderr := string(must.OK1(io.ReadAll(errR)))
	errR.Close()
	return out.String(), stderr, exit
}

func TestInteract(t *testing.T) {
	out, _, exit := runInteract(t, nil, "echo hello\n")
	if exit != 0 || out != "hello\n" {
		t.Errorf("got (%q, %d)", out, exit)
	}
}

func TestInteract_Continuation(t *testing.T) {
	out, _, exit := runInteract(t, nil, "if (1 == 1) {\necho yes\n}\n")
	if exit != 0 || out != "yes\n" {
		t.Errorf("got (%q, %d)", out, exit)
	}
}

func TestInteract_ErrorContinues(t *testing.T) {
	out, stderr, exit := runInteract(t, nil, "bogus\necho after\n")
	if exit != 0 || out != "after\n" {
		t.Errorf("got (%q, %d)", out, exit)
	}
	if !strings.Contains(stderr, "command or namespace not found") {
		t.Errorf("stderr %q misses resolution error", stderr)
	}
}

func TestInteract_ParseErrorContinues(t *testing.T) {
	out, stderr, exit := runInteract(t, nil, "volume ) show\necho after\n")
	if exit != 0 || out != "after\n" {
		t.Errorf("got (%q, %d)", out, exit)
	}
	if stderr == "" {
		t.Errorf("no parse error reported")
	}
}

func TestInteract_Exit(t *testing.T) {
	out, _, exit := runInteract(t, nil, "exit 3\necho no\n")
	if exit != 3 {
		t.Errorf("exit = %d, want 3", exit)
	}
	if strings.Contains(out, "no") {
		t.Errorf("statement after exit ran: %q", out)
	}
}

func TestInteract_History(t *testing.T) {
	st := store.MustTempStore(t)
	out, _, _ := runInteract(t, st, "echo first\nhistory\n")
	if !strings.Contains(out, "echo first") {
		t.Errorf("history output %q misses entry", out)
	}
	cmds := must.OK1(st.CmdsWithSeq(0, 100))
	if len(cmds) != 2 || cmds[0].Text != "echo first" || cmds[1].Text != "history" {
		t.Errorf("stored history %v", cmds)
	}
}

func TestInteract_PersistedVars(t *testing.T) {
	st := store.MustTempStore(t)
	runInteract(t, st, "setvar greeting=hello\n")
	out, _, _ := runInteract(t, st, "printvar greeting\n")
	if out != "hello\n" {
		t.Errorf("got %q, want %q", out, "hello\n")
	}
}

func TestInteract_CommandErrorVerbatim(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out)
	sess := &session{cfg: config.Default(), console: console}
	root := appliance.NewStatic("/")
	sess.ev = eval.NewEvaler(root, console)
	sess.ev.AddBuiltin("fail", cmdFunc(func(cc *eval.Context, args eval.Args) (any, error) {
		return nil, eval.Errorf("the pool is degraded")
	}))

	_, stderr, _ := func() (string, string, int) {
		stdin, stdinW := must.OK2(os.Pipe())
		defer stdin.Close()
		errR, errW := must.OK2(os.Pipe())
		go func() {
			stdinW.WriteString("fail\n")
			stdinW.Close()
		}()
		exit := interact(sess, [3]*os.File{stdin, nil, errW})
		errW.Close()
		stderr := string(must.OK1(io.ReadAll(errR)))
		errR.Close()
		return out.String(), stderr, exit
	}()
	if stderr != "the pool is degraded\n" {
		t.Errorf("stderr %q, want message verbatim", stderr)
	}
}
