package repl

import (
	"slices"
	"strings"
)

// Completer provides command completion for the REPL.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over commands plus the built-in
// shell words.
func NewCompleter(commands []string) *Completer {
	all := append(slices.Clone(commands), "exit", "quit", "history")
	slices.Sort(all)
	return &Completer{commands: slices.Compact(all)}
}

// Complete returns completion suggestions for the given prefix.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
