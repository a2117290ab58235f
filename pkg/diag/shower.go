package diag

// Shower is implemented by errors that can render themselves with source
// context for terminal display.
type Shower interface {
	// Show renders the value, indenting continuation lines with indent.
	Show(indent string) string
}
