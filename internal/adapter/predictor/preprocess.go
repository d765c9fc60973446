// Package predictor holds the image preprocessing shared by all inference
// engines. Engines themselves live in the stub and remote subpackages.
package predictor

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

const (
	// Side is the square input resolution of the res224 model family.
	Side = 224

	// Pixel values are rescaled to the Hounsfield-like [-1024, 1024] range
	// the model was trained on.
	scaleMin = -1024.0
	scaleMax = 1024.0
)

// Preprocess decodes an image, converts it to single-channel grayscale,
// center-crops to square, resizes to Side x Side by nearest neighbour, and
// rescales intensities. Decode failures map to ErrPreprocess; the submit
// path already validated the bytes, so a failure here means the blob was
// corrupted in transit.
func Preprocess(data []byte) (domain.Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.Tensor{}, fmt.Errorf("op=predictor.preprocess: decode: %w: %v", domain.ErrPreprocess, err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return domain.Tensor{}, fmt.Errorf("op=predictor.preprocess: empty image: %w", domain.ErrPreprocess)
	}

	// Center crop to the smaller dimension.
	side := w
	if h < side {
		side = h
	}
	offX := b.Min.X + (w-side)/2
	offY := b.Min.Y + (h-side)/2

	out := make([]float32, Side*Side)
	for y := 0; y < Side; y++ {
		srcY := offY + y*side/Side
		for x := 0; x < Side; x++ {
			srcX := offX + x*side/Side
			r, g, bl, _ := img.At(srcX, srcY).RGBA()
			// ITU-R BT.601 luma on 16-bit channels.
			gray := (299*float64(r) + 587*float64(g) + 114*float64(bl)) / 1000 / 65535
			out[y*Side+x] = float32(scaleMin + gray*(scaleMax-scaleMin))
		}
	}
	return domain.Tensor{Data: out, Width: Side, Height: Side}, nil
}
