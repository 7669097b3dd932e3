// Package imaging holds the deterministic image decode and tensor transform
// shared by every model in a request.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// ErrDecode marks input bytes that cannot be decoded as a supported image.
var ErrDecode = errors.New("cannot decode image")

// DefaultSide is the canonical analysis resolution the models were trained at.
const DefaultSide = 224

// Per-channel normalization constants. These must match the statistics the
// model weights were trained with (ImageNet).
var (
	normMean = [3]float32{0.485, 0.456, 0.406}
	normStd  = [3]float32{0.229, 0.224, 0.225}
)

// Tensor is a normalized CHW float32 representation of one image, computed
// once per request and reused across all models.
type Tensor struct {
	Data []float32
	Side int
}

// Decode parses JPEG or PNG bytes into an RGB image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// CropEdges symmetrically crops every edge by factor (a fraction of the
// corresponding dimension). factor <= 0 returns the image unchanged; the
// caller validates the [0, 0.5] range at the transport boundary.
func CropEdges(img image.Image, factor float64) image.Image {
	if factor <= 0 {
		return img
	}
	b := img.Bounds()
	cx := int(float64(b.Dx()) * factor)
	cy := int(float64(b.Dy()) * factor)
	rect := image.Rect(b.Min.X+cx, b.Min.Y+cy, b.Max.X-cx, b.Max.Y-cy)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return img
	}
	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), img, rect.Min, draw.Src)
	return cropped
}

// ToTensor resizes img to side x side (never crops) and standardizes each
// channel, producing the CHW tensor all models consume.
func ToTensor(img image.Image, side int) Tensor {
	if side <= 0 {
		side = DefaultSide
	}
	resized := resize.Resize(uint(side), uint(side), img, resize.Lanczos3)

	plane := side * side
	data := make([]float32, 3*plane)
	b := resized.Bounds()
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*side + x
			data[i] = (float32(r)/65535.0 - normMean[0]) / normStd[0]
			data[plane+i] = (float32(g)/65535.0 - normMean[1]) / normStd[1]
			data[2*plane+i] = (float32(bl)/65535.0 - normMean[2]) / normStd[2]
		}
	}
	return Tensor{Data: data, Side: side}
}

// ResizeTo scales img to side x side without cropping. Used for heatmap
// fallbacks and overlay backgrounds so they match the analysis resolution.
func ResizeTo(img image.Image, side int) image.Image {
	return resize.Resize(uint(side), uint(side), img, resize.Lanczos3)
}
