package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
	"github.com/coralstor/coral/pkg/config"
	"github.com/coralstor/coral/pkg/daemon"
	"github.com/coralstor/coral/pkg/daemon/daemondefs"
	"github.com/coralstor/coral/pkg/diag"
	"github.com/coralstor/coral/pkg/eval"
	"github.com/coralstor/coral/pkg/parse"
	"github.com/coralstor/coral/pkg/store"
)

// session holds the state of one shell invocation: the evaluator, the
// console, the persistent store and the set of detached tasks.
type session struct {
	cfg     config.Config
	console *Console
	store   store.DBStore
	client  *daemon.Client
	ev      *eval.Evaler

	mu      sync.Mutex
	pending map[string]struct{} // detached task IDs
}

func (s *session) notifyHandlers() daemon.NotifyHandlers {
	return daemon.NotifyHandlers{
		TaskDone: func(status daemondefs.TaskStatus) {
			s.mu.Lock()
			_, detached := s.pending[status.ID]
			delete(s.pending, status.ID)
			s.mu.Unlock()
			if detached {
				s.console.Notify("[task %s] %s: %s", status.ID, status.Name, status.State)
			}
		},
		EntityChanged: func(c daemondefs.EntityChange) {
			s.console.Notify("[event] %s %s: %v", c.Collection, c.Op, c.ID)
		},
	}
}

func (s *session) detach(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = make(map[string]struct{})
	}
	for _, id := range ids {
		s.pending[id] = struct{}{}
	}
	return len(ids)
}

func (s *session) prompt() string {
	return strings.ReplaceAll(s.cfg.Prompt, "%p", s.ev.Path())
}

// interact runs the REPL.
func interact(sess *session, fds [3]*os.File) int {
	interactive := isatty.IsTerminal(fds[0].Fd())
	reader := bufio.NewReader(fds[0])
	cmdNum := 0
	var buf strings.Builder

	for {
		if interactive {
			if buf.Len() == 0 {
				sess.console.ShowPrompt(sess.prompt())
			} else {
				sess.console.ShowPrompt("... ")
			}
		}
		line, readErr := reader.ReadString('\n')
		if interactive {
			sess.console.InputDone()
		}
		buf.WriteString(line)

		atEOF := readErr != nil
		if readErr != nil && readErr != io.EOF {
			fmt.Fprintln(fds[2], "cannot read input:", readErr)
			return 2
		}

		code := buf.String()
		if strings.TrimSpace(code) == "" {
			buf.Reset()
			if atEOF {
				return 0
			}
			continue
		}

		cmdNum++
		src := parse.Source{Name: fmt.Sprintf("[tty %d]", cmdNum), Code: code}
		stmts, err := parse.Parse(src, parse.ParseOpts{})
		if err != nil {
			if parse.PartialError(err) && !atEOF {
				// Unterminated construct; solicit one more line.
				continue
			}
			buf.Reset()
			diag.ShowError(fds[2], err)
			if atEOF {
				return 0
			}
			continue
		}
		buf.Reset()

		sess.addHistory(code)
		if exit, terminate := sess.evalInteractive(fds, src, stmts); terminate {
			return exit
		}
		if atEOF {
			return 0
		}
	}
}

// evalInteractive runs one parsed input with signal handling: SIGINT
// aborts the tasks the line is blocked on and cancels it, SIGTSTP detaches
// them into the pending set and cancels the wait only.
func (s *session) evalInteractive(fds [3]*os.File, src parse.Source, stmts []parse.Node) (int, bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTSTP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				switch sig {
				case unix.SIGINT:
					if s.client != nil {
						for _, id := range s.client.Waiting() {
							if err := s.client.AbortTask(context.Background(), id); err != nil {
								logger.Println("abort task:", err)
							}
						}
					}
					s.console.Notify("interrupted")
					cancel()
				case unix.SIGTSTP:
					if s.client != nil {
						if n := s.detach(s.client.Waiting()); n > 0 {
							s.console.Notify("detached %d task(s); use tasks to inspect", n)
						}
					}
					cancel()
				}
			case <-done:
				return
			}
		}
	}()
	defer func() {
		signal.Stop(sigCh)
		close(done)
	}()

	val, err := s.ev.EvalStatements(ctx, src, stmts)
	if err != nil {
		var exit eval.ExitSignal
		if errors.As(err, &exit) {
			return exit.Code, true
		}
		s.showError(fds[2], err)
		return 0, false
	}
	if val != nil {
		fmt.Fprintln(s.console, eval.Render(val))
	}
	return 0, false
}

// showError reports an evaluation error per the error taxonomy: command
// errors verbatim, positioned errors with their source context, anything
// else summarized (in full under the debug flag).
func (s *session) showError(w io.Writer, err error) {
	var cmdErr *eval.CommandError
	var nameErr *eval.NameError
	switch {
	case errors.As(err, &cmdErr):
		fmt.Fprintln(w, cmdErr.Message)
	case errors.As(err, &nameErr):
		fmt.Fprintln(w, "name error:", nameErr.Error())
	default:
		if _, ok := err.(diag.Shower); ok {
			diag.ShowError(w, err)
		} else if s.cfg.Debug {
			fmt.Fprintf(w, "internal error: %+v\n", err)
		} else {
			fmt.Fprintln(w, "internal error:", err)
		}
	}
}

func (s *session) addHistory(code string) {
	if s.store == nil {
		return
	}
	if _, err := s.store.AddCmd(strings.TrimRight(code, "\n")); err != nil {
		logger.Println("add history:", err)
		return
	}
	if size := s.cfg.History.Size; size > 0 {
		if err := s.store.TrimCmds(size); err != nil {
			logger.Println("trim history:", err)
		}
	}
}

// loadVars seeds the global scope with the persisted variables.
func (s *session) loadVars() {
	if s.store == nil {
		return
	}
	names, err := s.store.VarNames()
	if err != nil {
		logger.Println("load variables:", err)
		return
	}
	for _, name := range names {
		val, err := s.store.Var(name)
		if err != nil {
			continue
		}
		if err := s.ev.Global().Assign(name, val); err != nil {
			logger.Printf("load variable %s: %v", name, err)
		}
	}
}

// registerBuiltins adds the session-level builtins: persisted setvar,
// history and the pending-task listing.
func (s *session) registerBuiltins() {
	s.ev.AddBuiltin("setvar", cmdFunc(s.setvarCmd))
	s.ev.AddBuiltin("history", cmdFunc(s.historyCmd))
	s.ev.AddBuiltin("tasks", cmdFunc(s.tasksCmd))
}

type cmdFunc func(cc *eval.Context, args eval.Args) (any, error)

func (f cmdFunc) Run(cc *eval.Context, args eval.Args) (any, error) { return f(cc, args) }

// setvarCmd assigns global variables and persists them across sessions.
func (s *session) setvarCmd(cc *eval.Context, args eval.Args) (any, error) {
	if len(args.Kw) == 0 {
		return nil, eval.Errorf("setvar needs name=value arguments")
	}
	for name, val := range args.Kw {
		if err := cc.Evaler.Global().Assign(name, val); err != nil {
			return nil, err
		}
		if s.store != nil {
			if err := s.store.SetVar(name, val); err != nil {
				return nil, eval.Errorf("persist %s: %v", name, err)
			}
		}
	}
	return nil, nil
}

// historyCmd returns the most recent history entries, newest last. An
// optional positional argument limits how many.
func (s *session) historyCmd(cc *eval.Context, args eval.Args) (any, error) {
	if s.store == nil {
		return nil, eval.Errorf("history is disabled")
	}
	count := 20
	if len(args.Pos) == 1 {
		n, ok := args.Pos[0].(int)
		if !ok || n < 1 {
			return nil, eval.Errorf("history needs a positive count")
		}
		count = n
	}
	next, err := s.store.NextCmdSeq()
	if err != nil {
		return nil, err
	}
	from := next - count
	if from < 1 {
		from = 1
	}
	cmds, err := s.store.CmdsWithSeq(from, next)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(cmds))
	for i, cmd := range cmds {
		out[i] = map[string]any{"seq": cmd.Seq, "cmd": cmd.Text}
	}
	return out, nil
}

// tasksCmd lists the detached tasks with their current status.
func (s *session) tasksCmd(cc *eval.Context, args eval.Args) (any, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	out := make([]any, 0, len(ids))
	for _, id := range ids {
		status, err := s.client.TaskStatus(cc.Ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id": status.ID, "name": status.Name,
			"state": status.State, "progress": status.Progress,
		})
	}
	return out, nil
}
