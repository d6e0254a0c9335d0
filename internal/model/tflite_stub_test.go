//go:build !tflite

package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenTFLiteWithoutTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tomato.tflite")
	if err := os.WriteFile(path, []byte("flatbuffer"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Open(Options{Path: path})
	if !errors.Is(err, ErrTFLiteUnavailable) {
		t.Errorf("Open() error = %v, want ErrTFLiteUnavailable", err)
	}
	if m != nil {
		t.Errorf("Open() model = %v, want nil", m)
	}
}
