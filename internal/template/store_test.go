package template

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writePNG(t *testing.T, file string, shade uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 40), B: uint8(y * 60), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(file, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("writing %s: %v", file, err)
	}
}

func writeGIF(t *testing.T, file string) {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 5, 2), color.Palette{color.Black, color.White})
	img.SetColorIndex(2, 1, 1)
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding gif: %v", err)
	}
	if err := os.WriteFile(file, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("writing %s: %v", file, err)
	}
}

type warnLogger struct {
	noopLogger
	mu    sync.Mutex
	warns int
}

func (l *warnLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func TestStore_Load(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "opening.png"), 10)
	writePNG(t, filepath.Join(dir, "social", "copy.png"), 20)
	writePNG(t, filepath.Join(dir, "Nine.PNG"), 30)
	writeGIF(t, filepath.Join(dir, "spinner.gif"))
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}

	logger := &warnLogger{}
	s := NewStore()
	s.SetLogger(logger)

	n, err := s.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Load() inserted %d, want 4", n)
	}

	want := []string{"Nine", "opening", "social/copy", "spinner"}
	got := s.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if logger.warns != 1 {
		t.Errorf("logged %d decode warnings, want 1", logger.warns)
	}

	img, ok := s.Get("social/copy")
	if !ok {
		t.Fatal("Get(social/copy) absent")
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Errorf("template size = %v, want 4x3", img.Bounds())
	}

	spinner, ok := s.Get("spinner")
	if !ok {
		t.Fatal("Get(spinner) absent")
	}
	if spinner.Bounds().Dx() != 5 || spinner.Bounds().Dy() != 2 {
		t.Errorf("gif template size = %v, want 5x2", spinner.Bounds())
	}
	if spinner.GrayAt(2, 1).Y != 255 || spinner.GrayAt(0, 0).Y != 0 {
		t.Errorf("gif pixels = %d, %d; want 255, 0", spinner.GrayAt(2, 1).Y, spinner.GrayAt(0, 0).Y)
	}

	// Second load is a no-op.
	n, err = s.Load(context.Background(), dir)
	if err != nil || n != 0 {
		t.Errorf("second Load() = %d, %v; want 0, nil", n, err)
	}
	if again, _ := s.Get("social/copy"); again != img {
		t.Error("second Load() replaced a cached template")
	}
}

func TestStore_LoadUnreadableDir(t *testing.T) {
	s := NewStore()
	_, err := s.Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrDirUnreadable) {
		t.Errorf("Load() error = %v, want ErrDirUnreadable", err)
	}
}

func TestStore_LoadCancelled(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewStore().Load(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestStore_InsertIsWriteOnce(t *testing.T) {
	s := NewStore()
	first := image.NewGray(image.Rect(0, 0, 2, 2))
	second := image.NewGray(image.Rect(0, 0, 5, 5))

	got, fresh := s.Insert("k", first)
	if !fresh || got != first {
		t.Fatalf("first Insert() = %p, %v", got, fresh)
	}
	got, fresh = s.Insert("k", second)
	if fresh || got != first {
		t.Errorf("second Insert() = %p, %v; want original entry, false", got, fresh)
	}
}

func TestStore_Lookup(t *testing.T) {
	s := NewStore()
	if _, err := s.Lookup("missing"); !errors.Is(err, ErrTemplateAbsent) {
		t.Errorf("Lookup(missing) error = %v, want ErrTemplateAbsent", err)
	}
}

func TestStore_ConcurrentGetIsIdentical(t *testing.T) {
	s := NewStore()
	src := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 3)
	}
	s.Insert("anchor", src)
	want := append([]byte(nil), src.Pix...)

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, ok := s.Get("anchor")
			if !ok || !bytes.Equal(img.Pix, want) {
				errs <- "content differs"
			}
		}()
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		dir, file string
		want      string
		wantErr   bool
	}{
		{"data/images", "data/images/opening.png", "opening", false},
		{"data/images", "data/images/social/add.jpg", "social/add", false},
		{"data/images", "data/other/x.png", "", true},
	}
	for _, tt := range tests {
		got, err := Key(tt.dir, filepath.FromSlash(tt.file))
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("Key(%q, %q) = %q, %v; want %q, err=%v", tt.dir, tt.file, got, err, tt.want, tt.wantErr)
		}
	}
}
