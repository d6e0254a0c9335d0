package uploads

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndRemove(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	rel, abs, err := s.Save("Leaf.JPG", strings.NewReader("pixels"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(rel, RawDir+"/") || !strings.HasSuffix(rel, ".jpg") {
		t.Errorf("Save() rel = %q", rel)
	}
	content, err := os.ReadFile(abs)
	if err != nil || string(content) != "pixels" {
		t.Fatalf("saved content = %q, %v", content, err)
	}

	resolved, err := s.Abs(rel)
	if err != nil || resolved != abs {
		t.Errorf("Abs(%q) = %q, %v; want %q", rel, resolved, err, abs)
	}

	rel2, _, err := s.Save("Leaf.JPG", strings.NewReader("other"))
	if err != nil {
		t.Fatal(err)
	}
	if rel2 == rel {
		t.Error("two uploads got the same name")
	}

	if err := s.Remove(rel); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(abs); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still present: %v", err)
	}
	if err := s.Remove(rel); err != nil {
		t.Errorf("second Remove() = %v", err)
	}
}

func TestAbsStaysInRoot(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		rel     string
		wantErr bool
	}{
		{"raw_images/a.png", false},
		{"../etc/passwd", false},
		{"raw_images\\b.png", false},
		{"", true},
		{"/", true},
	}
	for _, tt := range tests {
		got, err := s.Abs(tt.rel)
		if (err != nil) != tt.wantErr {
			t.Errorf("Abs(%q) error = %v, wantErr %v", tt.rel, err, tt.wantErr)
			continue
		}
		if err == nil && !strings.HasPrefix(got, s.Root()+string(filepath.Separator)) {
			t.Errorf("Abs(%q) = %q escapes %q", tt.rel, got, s.Root())
		}
	}
}

func TestAllowed(t *testing.T) {
	for name, want := range map[string]bool{
		"a.jpg":  true,
		"b.JPEG": true,
		"c.png":  true,
		"d.webp": true,
		"e.exe":  false,
		"noext":  false,
	} {
		if got := Allowed(name); got != want {
			t.Errorf("Allowed(%q) = %v, want %v", name, got, want)
		}
	}
}
