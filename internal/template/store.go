package template

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/packpilot/internal/vision"
)

// Logger is the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

var extensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Store is a write-once-per-key cache of grayscale templates.
// All methods are safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	images map[string]*image.Gray
	logger Logger
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		images: make(map[string]*image.Gray),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used to report decode failures.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load decodes every eligible image under dir concurrently and inserts it
// under its normalised key. A file that fails to decode is logged and
// skipped. Only an unreadable directory or a cancelled context is an error.
// It returns the number of keys newly inserted.
func (s *Store) Load(ctx context.Context, dir string) (int, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && extensions[strings.ToLower(filepath.Ext(p))] {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDirUnreadable, err)
	}

	var (
		inserted int
		countMu  sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key, err := Key(dir, file)
			if err != nil {
				s.logger.Warn("skipping template", "file", file, "error", err)
				return nil
			}
			if _, ok := s.Get(key); ok {
				return nil
			}
			img, err := decodeFile(file)
			if err != nil {
				s.logger.Warn("template decode failed", "file", file, "error", err)
				return nil
			}
			if _, fresh := s.Insert(key, img); fresh {
				countMu.Lock()
				inserted++
				countMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return inserted, fmt.Errorf("loading templates: %w", err)
	}

	s.logger.Info("templates loaded", "dir", dir, "files", len(files), "inserted", inserted)
	return inserted, nil
}

// Insert stores img under key unless the key already exists. It returns
// the cached entry and whether it was newly inserted.
func (s *Store) Insert(key string, img image.Image) (*image.Gray, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.images[key]; ok {
		return existing, false
	}
	gray := vision.Grayscale(img)
	s.images[key] = gray
	return gray, true
}

// Get returns the template cached under key.
func (s *Store) Get(key string) (*image.Gray, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[key]
	return img, ok
}

// Lookup is Get returning ErrTemplateAbsent for unknown keys.
func (s *Store) Lookup(key string) (*image.Gray, error) {
	img, ok := s.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateAbsent, key)
	}
	return img, nil
}

// Keys returns every cached key in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.images))
	for k := range s.images {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of cached templates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// Key normalises file, which must lie under dir, into a template key.
func Key(dir, file string) (string, error) {
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", file, dir)
	}
	return strings.TrimSuffix(rel, path.Ext(rel)), nil
}

func decodeFile(file string) (image.Image, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", file, err)
	}
	return img, nil
}
