package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const RawDir = "raw_images"

var ErrInvalidPath = errors.New("path escapes upload directory")

// Extensions accepted for leaf images.
var Extensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Storage writes uploaded images below a root directory. Paths handed out
// are slash separated and relative to the root.
type Storage struct {
	root string
}

func New(root string) (*Storage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, RawDir), os.ModePerm); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Storage{root: abs}, nil
}

func (s *Storage) Root() string {
	return s.root
}

// Allowed reports whether filename carries an accepted image extension.
func Allowed(filename string) bool {
	return Extensions[strings.ToLower(filepath.Ext(filename))]
}

// Save copies r into a new uniquely named file, keeping the extension of
// filename. It returns the relative and absolute paths.
func (s *Storage) Save(filename string, r io.Reader) (rel string, abs string, err error) {
	ext := strings.ToLower(filepath.Ext(filename))
	rel = path.Join(RawDir, uuid.New().String()+ext)
	abs = filepath.Join(s.root, filepath.FromSlash(rel))

	f, err := os.OpenFile(abs, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", "", fmt.Errorf("create %s: %w", rel, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(abs)
		return "", "", fmt.Errorf("write %s: %w", rel, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(abs)
		return "", "", fmt.Errorf("close %s: %w", rel, err)
	}
	return rel, abs, nil
}

// Abs resolves rel inside the root.
func (s *Storage) Abs(rel string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	if cleaned == "/" {
		return "", ErrInvalidPath
	}
	abs := filepath.Join(s.root, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return abs, nil
}

// Remove deletes the file at rel. A file that is already gone is not an error.
func (s *Storage) Remove(rel string) error {
	abs, err := s.Abs(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
