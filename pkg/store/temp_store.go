package store

import (
	"path/filepath"

	"github.com/coralstor/coral/pkg/must"
	"github.com/coralstor/coral/pkg/testutil"
)

// MustTempStore returns a Store backed by a file in a temporary directory
// that is removed when the test finishes.
func MustTempStore(c testutil.Cleanuper) DBStore {
	st := must.OK1(NewStore(filepath.Join(testutil.TempDir(c), "db")))
	c.Cleanup(func() { st.Close() })
	return st
}
