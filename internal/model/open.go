package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Model is a loaded classifier that maps one preprocessed image batch to a
// score vector.
type Model interface {
	Metadata() Metadata
	Predict(input []float32) ([]float32, error)
	Close()
}

type Options struct {
	Path          string `yaml:"path"`
	MetadataPath  string `yaml:"metadata"`
	SharedLibrary string `yaml:"sharedLibrary"`
	Threads       int    `yaml:"threads"`
}

// Open loads the model at opts.Path, choosing the runtime from the file
// extension.
func Open(opts Options) (Model, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("model path not set")
	}
	if _, err := os.Stat(opts.Path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	metadata, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}

	switch ext := strings.ToLower(filepath.Ext(opts.Path)); ext {
	case ".onnx":
		m, err := NewONNXModel(opts.Path, metadata, opts.SharedLibrary)
		if err != nil {
			return nil, err
		}
		return m, nil
	case ".tflite":
		m, err := NewTFLiteModel(opts.Path, metadata, opts.Threads)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model format %q", ext)
	}
}
