package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type Layout string

const (
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

type ChannelOrder string

const (
	ChannelsBGR ChannelOrder = "bgr"
	ChannelsRGB ChannelOrder = "rgb"
)

// Label is one row of the class table shipped with a model.
type Label struct {
	Class string `json:"class"`
	Label string `json:"label"`
	Color string `json:"color"`
}

type Metadata struct {
	InputShape   []int64      `json:"input_shape"`
	OutputShape  []int64      `json:"output_shape"`
	ImageSize    int          `json:"image_size"`
	Layout       Layout       `json:"layout"`
	ChannelOrder ChannelOrder `json:"channel_order"`
	InputName    string       `json:"input_name"`
	OutputName   string       `json:"output_name"`
	Labels       []Label      `json:"labels"`
}

// DefaultMetadata describes the Keras tomato leaf classifier: one 224x224
// BGR image in, two class scores out.
func DefaultMetadata() Metadata {
	return Metadata{
		InputShape:   []int64{1, 224, 224, 3},
		OutputShape:  []int64{1, 2},
		ImageSize:    224,
		Layout:       LayoutNHWC,
		ChannelOrder: ChannelsBGR,
		InputName:    "input",
		OutputName:   "output",
		Labels: []Label{
			{Class: "Tomato___Tomato_Yellow_Leaf_Curl_Virus", Label: "Infected (TYLCV)", Color: "red"},
			{Class: "Tomato___healthy", Label: "Healthy", Color: "green"},
		},
	}
}

// LoadMetadata reads the JSON sidecar at path. A missing file yields
// DefaultMetadata; fields left empty in the file are filled from it too.
func LoadMetadata(path string) (Metadata, error) {
	metadata := DefaultMetadata()
	if path == "" {
		return metadata, nil
	}
	metaFile, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return metadata, nil
		}
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var parsed Metadata
	if err := json.Unmarshal(metaFile, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	metadata.merge(parsed)
	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func (m *Metadata) merge(o Metadata) {
	if len(o.InputShape) > 0 {
		m.InputShape = o.InputShape
	}
	if len(o.OutputShape) > 0 {
		m.OutputShape = o.OutputShape
	}
	if o.ImageSize > 0 {
		m.ImageSize = o.ImageSize
	}
	if o.Layout != "" {
		m.Layout = o.Layout
	}
	if o.ChannelOrder != "" {
		m.ChannelOrder = o.ChannelOrder
	}
	if o.InputName != "" {
		m.InputName = o.InputName
	}
	if o.OutputName != "" {
		m.OutputName = o.OutputName
	}
	if len(o.Labels) > 0 {
		m.Labels = o.Labels
	}
}

func (m Metadata) Validate() error {
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input shape must have 4 dimensions, got %v", m.InputShape)
	}
	for _, dim := range m.InputShape {
		if dim <= 0 {
			return fmt.Errorf("input shape has non-positive dimension: %v", m.InputShape)
		}
	}
	if m.InputShape[0] != 1 {
		return fmt.Errorf("batch dimension must be 1, got %d", m.InputShape[0])
	}
	var height, width int64
	switch m.Layout {
	case LayoutNHWC:
		if m.InputShape[3] != 3 {
			return fmt.Errorf("nhwc input must have 3 channels, got %v", m.InputShape)
		}
		height, width = m.InputShape[1], m.InputShape[2]
	case LayoutNCHW:
		if m.InputShape[1] != 3 {
			return fmt.Errorf("nchw input must have 3 channels, got %v", m.InputShape)
		}
		height, width = m.InputShape[2], m.InputShape[3]
	default:
		return fmt.Errorf("unknown layout %q", m.Layout)
	}
	// image_size is informational; when given it has to agree with the shape
	if m.ImageSize > 0 && (height != int64(m.ImageSize) || width != int64(m.ImageSize)) {
		return fmt.Errorf("image size %d does not match input shape %v", m.ImageSize, m.InputShape)
	}
	if m.ChannelOrder != ChannelsBGR && m.ChannelOrder != ChannelsRGB {
		return fmt.Errorf("unknown channel order %q", m.ChannelOrder)
	}
	if OutputSize(m.OutputShape) <= 0 {
		return fmt.Errorf("invalid output shape %v", m.OutputShape)
	}
	return nil
}

// OutputSize is the number of scores the model produces per image.
func (m Metadata) OutputSize() int {
	return OutputSize(m.OutputShape)
}

// InputSize is the number of float32 values in one input batch.
func (m Metadata) InputSize() int {
	return volume(m.InputShape)
}

func OutputSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	return volume(shape)
}

func volume(shape []int64) int {
	n := 1
	for _, dim := range shape {
		n *= int(dim)
	}
	return n
}
