package results

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nerrad567/packpilot/internal/automation"
	"github.com/nerrad567/packpilot/internal/worker"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// Line formats a successful result as "nickname, friend_id". ok is false
// when the result did not succeed or is missing either value.
func Line(res worker.Result) (line string, ok bool) {
	if res.State != worker.StateSuccess {
		return "", false
	}
	nick := res.Payload[automation.PayloadNickname]
	id := res.Payload[automation.PayloadFriendID]
	if nick == "" || id == "" {
		return "", false
	}
	return nick + ", " + id, true
}

// AppendFile appends one line per recordable result to path, creating the
// file and its directory if needed. It returns the number of lines written.
func AppendFile(path string, results []worker.Result) (int, error) {
	lines := make([]string, 0, len(results))
	for _, res := range results {
		if line, ok := Line(res); ok {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return 0, fmt.Errorf("creating results directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePermissions) //nolint:gosec // path comes from operator config
	if err != nil {
		return 0, fmt.Errorf("opening results file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			f.Close() //nolint:errcheck // write error takes precedence
			return 0, fmt.Errorf("writing results file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return 0, fmt.Errorf("writing results file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing results file: %w", err)
	}
	return len(lines), nil
}
