package buildinfo

import (
	"runtime"
	"strings"
	"testing"

	"github.com/coralstor/coral/pkg/prog"
	"github.com/coralstor/coral/pkg/prog/progtest"
)

func TestVersion(t *testing.T) {
	out := progtest.Run(t, Program, "-version")
	if want := Version + VersionSuffix + "\n"; out.Stdout != want {
		t.Errorf("got stdout %q, want %q", out.Stdout, want)
	}
}

func TestBuildInfo(t *testing.T) {
	out := progtest.Run(t, Program, "-buildinfo")
	if !strings.Contains(out.Stdout, Version+VersionSuffix) {
		t.Errorf("stdout %q misses version", out.Stdout)
	}
	if !strings.Contains(out.Stdout, runtime.Version()) {
		t.Errorf("stdout %q misses Go version", out.Stdout)
	}
}

func TestBuildInfo_JSON(t *testing.T) {
	out := progtest.Run(t, Program, "-buildinfo", "-json")
	if !strings.HasPrefix(out.Stdout, `{"version":`) {
		t.Errorf("got stdout %q, want JSON object", out.Stdout)
	}
}

func TestNotSuitable(t *testing.T) {
	out := progtest.Run(t, Program)
	if out.Exit != 2 {
		t.Errorf("got exit %d, want 2", out.Exit)
	}
	if !strings.Contains(out.Stderr, prog.ErrNotSuitable.Error()) {
		t.Errorf("got stderr %q", out.Stderr)
	}
}
