//go:build tflite

package model

import (
	"fmt"
	"sync"

	"github.com/mattn/go-tflite"
)

// TFLiteModel runs a TensorFlow Lite flatbuffer. The interpreter is not safe
// for concurrent Invoke calls, so Predict is serialized.
type TFLiteModel struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	metadata    Metadata
}

func NewTFLiteModel(modelPath string, metadata Metadata, threads int) (*TFLiteModel, error) {
	model := tflite.NewModelFromFile(modelPath)
	if model == nil {
		return nil, fmt.Errorf("failed to load tflite model %s", modelPath)
	}

	options := tflite.NewInterpreterOptions()
	if threads > 0 {
		options.SetNumThread(threads)
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("failed to create tflite interpreter")
	}

	m := &TFLiteModel{model: model, options: options, interpreter: interpreter}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		m.Close()
		return nil, fmt.Errorf("failed to allocate tensors: status %v", status)
	}

	input := interpreter.GetInputTensor(0)
	if input.Type() != tflite.Float32 {
		m.Close()
		return nil, fmt.Errorf("unsupported input tensor type %v", input.Type())
	}
	// the flatbuffer knows its own shapes better than the sidecar does
	shape := make([]int64, input.NumDims())
	for i := range shape {
		shape[i] = int64(input.Dim(i))
	}
	metadata.InputShape = shape
	metadata.ImageSize = 0
	output := interpreter.GetOutputTensor(0)
	outShape := make([]int64, output.NumDims())
	for i := range outShape {
		outShape[i] = int64(output.Dim(i))
	}
	metadata.OutputShape = outShape
	if err := metadata.Validate(); err != nil {
		m.Close()
		return nil, err
	}
	m.metadata = metadata
	return m, nil
}

func (m *TFLiteModel) Metadata() Metadata {
	return m.metadata
}

func (m *TFLiteModel) Predict(input []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if want := m.metadata.InputSize(); len(input) != want {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), want)
	}
	if status := m.interpreter.GetInputTensor(0).CopyFromBuffer(input); status != tflite.OK {
		return nil, fmt.Errorf("failed to copy input: status %v", status)
	}
	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("inference failed: status %v", status)
	}

	outputData := m.interpreter.GetOutputTensor(0).Float32s()
	scores := make([]float32, len(outputData))
	copy(scores, outputData)
	return scores, nil
}

func (m *TFLiteModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.options != nil {
		m.options.Delete()
		m.options = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
}
