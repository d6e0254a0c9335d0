package classifier

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/Brownie44l1/leafcheck/internal/model"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// MaxImagePixels bounds width*height of an image accepted for decoding. The
// header is checked first so a tiny file cannot declare a huge canvas.
var MaxImagePixels = 1 << 26

// DecodeFile decodes the image at path using any registered format.
func DecodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, "", err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, fmt.Errorf("empty %s image %dx%d", format, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(MaxImagePixels) {
		return nil, format, fmt.Errorf("%s image %dx%d exceeds %d pixels", format, cfg.Width, cfg.Height, MaxImagePixels)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, format, err
	}
	return image.Decode(f)
}

// Preprocess turns img into the single-image batch the model expects:
// stretched to the input size without keeping the aspect ratio, channels in
// the model's order, values scaled from [0,255] to [0,1].
func Preprocess(img image.Image, metadata model.Metadata) ([]float32, error) {
	if len(metadata.InputShape) != 4 || metadata.InputShape[0] != 1 {
		return nil, fmt.Errorf("unsupported input shape %v", metadata.InputShape)
	}

	var width, height int
	switch metadata.Layout {
	case model.LayoutNHWC:
		height, width = int(metadata.InputShape[1]), int(metadata.InputShape[2])
	case model.LayoutNCHW:
		height, width = int(metadata.InputShape[2]), int(metadata.InputShape[3])
	default:
		return nil, fmt.Errorf("unknown layout %q", metadata.Layout)
	}

	resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	bounds := resized.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		return nil, fmt.Errorf("resized to %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), width, height)
	}

	// channel slot for red, green, blue
	order := [3]int{2, 1, 0}
	if metadata.ChannelOrder == model.ChannelsRGB {
		order = [3]int{0, 1, 2}
	}

	plane := width * height
	inputData := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			values := [3]float32{
				float32(r>>8) / 255.0,
				float32(g>>8) / 255.0,
				float32(b>>8) / 255.0,
			}

			pixelIndex := y*width + x
			for c, v := range values {
				if metadata.Layout == model.LayoutNHWC {
					inputData[pixelIndex*3+order[c]] = v
				} else {
					inputData[order[c]*plane+pixelIndex] = v
				}
			}
		}
	}
	return inputData, nil
}

// Argmax returns the index of the largest score; ties go to the lowest index.
func Argmax(scores []float32) int {
	if len(scores) == 0 {
		return -1
	}
	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return maxIdx
}
