// Package progtest contains utilities for testing subprograms.
package progtest

import (
	"io"
	"os"
	"testing"

	"github.com/coralstor/coral/pkg/must"
	"github.com/coralstor/coral/pkg/prog"
)

// Output captures the outcome of running a subprogram once.
type Output struct {
	Exit   int
	Stdout string
	Stderr string
}

// Run runs a Program with the given arguments (excluding the program name)
// and captures its output. Stdin is connected to an empty pipe.
func Run(t *testing.T, p prog.Program, args ...string) Output {
	t.Helper()
	stdin, stdinW := must.OK2(os.Pipe())
	stdinW.Close()
	defer stdin.Close()
	outR, outW := must.OK2(os.Pipe())
	errR, errW := must.OK2(os.Pipe())

	exit := prog.Run([3]*os.File{stdin, outW, errW}, append([]string{"coral"}, args...), p)
	outW.Close()
	errW.Close()
	out := Output{
		Exit:   exit,
		Stdout: string(must.OK1(io.ReadAll(outR))),
		Stderr: string(must.OK1(io.ReadAll(errR))),
	}
	outR.Close()
	errR.Close()
	return out
}
