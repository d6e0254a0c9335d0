//go:build !tflite

package model

import "errors"

// ErrTFLiteUnavailable is returned for .tflite models when the binary was
// built without the tflite tag (the runtime needs the TensorFlow Lite C
// library through cgo).
var ErrTFLiteUnavailable = errors.New("tflite support not compiled in, rebuild with -tags tflite")

func NewTFLiteModel(modelPath string, metadata Metadata, threads int) (Model, error) {
	return nil, ErrTFLiteUnavailable
}
