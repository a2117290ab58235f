//go:build !windows && !plan9

package shell

import (
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/coralstor/coral/pkg/testutil"
)

// TestConsole_PTY exercises the blank-and-restore sequence over a real
// terminal device.
func TestConsole_PTY(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("cannot open pty: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	c := NewConsole(tty)
	c.ShowPrompt("/> ")
	c.Notify("task done")

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		var sb strings.Builder
		for {
			n, err := ptmx.Read(buf)
			sb.Write(buf[:n])
			s := sb.String()
			if err != nil || (strings.Contains(s, "task done") && strings.HasSuffix(s, "/> ")) {
				got <- s
				return
			}
		}
	}()

	select {
	case s := <-got:
		if !strings.Contains(s, "\r\x1b[Ktask done") {
			t.Errorf("output %q misses blank-and-restore sequence", s)
		}
		if !strings.HasSuffix(s, "/> ") {
			t.Errorf("output %q does not end with the restored prompt", s)
		}
	case <-time.After(testutil.Scaled(time.Second)):
		t.Fatalf("timed out reading from pty")
	}
}
