// Package buildinfo contains build information.
//
// Build information should be set during compilation by passing
// -ldflags "-X github.com/coralstor/coral/pkg/buildinfo.Var=value" to
// "go build".
package buildinfo

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/coralstor/coral/pkg/prog"
)

// Version identifies the version of coral. On development commits, it
// identifies the next release.
const Version = "0.3.0"

// VersionSuffix is appended to Version to build the full version string.
// It can be overridden when building.
var VersionSuffix = "-dev"

// Program is the buildinfo subprogram.
var Program prog.Program = program{}

type program struct{}

func (program) Run(fds [3]*os.File, f *prog.Flags, _ []string) error {
	switch {
	case f.BuildInfo:
		fullVersion := Version + VersionSuffix
		if f.JSON {
			fmt.Fprintf(fds[1],
				`{"version":%s,"goversion":%s}`+"\n",
				quoteJSON(fullVersion), quoteJSON(runtime.Version()))
		} else {
			fmt.Fprintln(fds[1], "Version:", fullVersion)
			fmt.Fprintln(fds[1], "Go version:", runtime.Version())
		}
	case f.Version:
		fmt.Fprintln(fds[1], Version+VersionSuffix)
	default:
		return prog.ErrNotSuitable
	}
	return nil
}

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
