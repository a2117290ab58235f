package shell

import (
	"fmt"
	"io"
	"sync"
)

// Console serializes terminal output between the REPL and asynchronous
// event notifications. While an input prompt is on screen, a notification
// blanks the input line, prints itself, and restores the prompt, so that
// server-pushed events never corrupt the line being typed.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	prompt   string
	atPrompt bool
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// ShowPrompt prints the prompt and marks the input line active.
func (c *Console) ShowPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt = prompt
	c.atPrompt = true
	fmt.Fprint(c.w, prompt)
}

// InputDone marks the input line finished; notifications print plainly
// until the next prompt.
func (c *Console) InputDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.atPrompt = false
}

// Notify prints an asynchronous event line. With a prompt on screen the
// input line is blanked first and the prompt restored after.
func (c *Console) Notify(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if c.atPrompt {
		fmt.Fprintf(c.w, "\r\x1b[K%s\n%s", msg, c.prompt)
	} else {
		fmt.Fprintf(c.w, "%s\n", msg)
	}
}

// Write implements io.Writer for command output, sharing the output lock
// with notifications.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}
