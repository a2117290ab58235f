package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/coralstor/coral/pkg/eval"
	"github.com/coralstor/coral/pkg/parse"
)

// script executes a script file, or the first argument as code when cmd is
// set. The whole input is parsed up front; any parse error aborts the file
// before anything runs.
func script(sess *session, fds [3]*os.File, args []string, cmd bool) int {
	arg0 := args[0]

	var name, code string
	if cmd {
		name = "code from -c"
		code = arg0
	} else {
		var err error
		name, err = filepath.Abs(arg0)
		if err != nil {
			fmt.Fprintf(fds[2], "cannot get full path of script %q: %v\n", arg0, err)
			return 2
		}
		code, err = readFileUTF8(name)
		if err != nil {
			fmt.Fprintf(fds[2], "cannot read script %q: %v\n", name, err)
			return 2
		}
	}

	src := parse.Source{Name: name, Code: code}
	stmts, err := parse.Parse(src, parse.ParseOpts{})
	if err != nil {
		sess.showError(fds[2], err)
		return 2
	}

	for _, stmt := range stmts {
		val, err := sess.ev.EvalStatements(context.Background(), src, []parse.Node{stmt})
		if err != nil {
			var exit eval.ExitSignal
			if errors.As(err, &exit) {
				return exit.Code
			}
			sess.showError(fds[2], err)
			return 2
		}
		if val != nil {
			fmt.Fprintln(sess.console, eval.Render(val))
		}
	}
	return 0
}

var errSourceNotUTF8 = errors.New("source is not UTF-8")

func readFileUTF8(fname string) (string, error) {
	bytes, err := os.ReadFile(fname)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(bytes) {
		return "", errSourceNotUTF8
	}
	return string(bytes), nil
}
