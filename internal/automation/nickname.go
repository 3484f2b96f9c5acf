package automation

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
)

// ErrNoNicknames is returned when a nickname file holds no usable line.
var ErrNoNicknames = errors.New("automation: no nicknames")

// NicknameList draws nicknames uniformly at random from a fixed list.
// It is safe for concurrent use.
type NicknameList struct {
	names []string
}

// NewNicknameList returns a list over names. Blank entries are dropped.
func NewNicknameList(names []string) (*NicknameList, error) {
	kept := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNoNicknames
	}
	return &NicknameList{names: kept}, nil
}

// LoadNicknames reads one nickname per line from path.
func LoadNicknames(path string) (*NicknameList, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("opening nickname file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		names = append(names, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading nickname file: %w", err)
	}

	list, err := NewNicknameList(names)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

// Nickname returns a random entry.
func (l *NicknameList) Nickname() (string, error) {
	return l.names[rand.IntN(len(l.names))], nil
}

// Len returns the number of entries.
func (l *NicknameList) Len() int {
	return len(l.names)
}
