// Coral is the administrative shell of the coral storage appliance. It
// evaluates the coral command language against the appliance middleware,
// interactively or from scripts, and doubles as the language server and a
// middleware simulator for development.
package main

import (
	"os"

	"github.com/coralstor/coral/pkg/buildinfo"
	"github.com/coralstor/coral/pkg/daemon"
	"github.com/coralstor/coral/pkg/lsp"
	"github.com/coralstor/coral/pkg/prog"
	"github.com/coralstor/coral/pkg/shell"
)

func main() {
	os.Exit(prog.Run(
		[3]*os.File{os.Stdin, os.Stdout, os.Stderr}, os.Args,
		prog.Composite(
			buildinfo.Program, daemon.Program, lsp.Program, shell.Program)))
}
