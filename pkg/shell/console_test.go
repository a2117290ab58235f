package shell

import (
	"strings"
	"testing"
)

func TestConsole_NotifyWithoutPrompt(t *testing.T) {
	var sb strings.Builder
	c := NewConsole(&sb)
	c.Notify("volume %s created", "backup")
	if got := sb.String(); got != "volume backup created\n" {
		t.Errorf("got %q", got)
	}
}

func TestConsole_BlankAndRestore(t *testing.T) {
	var sb strings.Builder
	c := NewConsole(&sb)
	c.ShowPrompt("/> ")
	c.Notify("event")
	want := "/> \r\x1b[Kevent\n/> "
	if got := sb.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConsole_InputDoneStopsRestore(t *testing.T) {
	var sb strings.Builder
	c := NewConsole(&sb)
	c.ShowPrompt("/> ")
	c.InputDone()
	c.Notify("event")
	want := "/> event\n"
	if got := sb.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
