// Package clipboard reads the host system clipboard through whichever
// platform tool is installed.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrUnavailable is returned when no clipboard tool could be run.
var ErrUnavailable = errors.New("clipboard: no clipboard command available")

// DefaultReaders are tried in order until one succeeds.
var DefaultReaders = [][]string{
	{"pbpaste"},
	{"xclip", "-selection", "clipboard", "-o"},
	{"xsel", "--clipboard", "--output"},
	{"wl-paste", "--no-newline"},
	{"powershell.exe", "-NoProfile", "-Command", "Get-Clipboard"},
}

// System reads the host clipboard. It satisfies automation.ClipboardReader.
type System struct {
	readers [][]string
}

// New returns a reader over the given commands, or DefaultReaders when
// none are given. Commands whose binary is not on PATH are dropped.
func New(readers ...[]string) *System {
	if len(readers) == 0 {
		readers = DefaultReaders
	}
	var found [][]string
	for _, args := range readers {
		if len(args) == 0 {
			continue
		}
		if _, err := exec.LookPath(args[0]); err == nil {
			found = append(found, args)
		}
	}
	return &System{readers: found}
}

// Available reports whether any clipboard command was found.
func (s *System) Available() bool {
	return s != nil && len(s.readers) > 0
}

// Read returns the clipboard text with surrounding whitespace removed.
func (s *System) Read(ctx context.Context) (string, error) {
	if !s.Available() {
		return "", ErrUnavailable
	}
	var lastErr error
	for _, args := range s.readers {
		out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output() //nolint:gosec // fixed command list
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		return strings.TrimSpace(string(out)), nil
	}
	return "", fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}
