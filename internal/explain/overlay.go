package explain

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/mkowalczyk/dermascan/internal/imaging"
	"github.com/mkowalczyk/dermascan/internal/model"
)

// blendAlpha is the colormap weight in the final overlay; the remainder is
// the original image.
const blendAlpha = 0.5

// Heatmap produces the explanation overlay for one model output: the
// class-activation map for the top class, Jet-colored and alpha-blended
// over the original image resized to the analysis resolution. Any error is
// a signal to fall back, never to abort the request.
func Heatmap(arch model.Architecture, out *model.Output, headRow []float32, original image.Image, side int) (image.Image, error) {
	acts, err := arch.SpatialActivations(out.Features, out.FeatureShape)
	if err != nil {
		return nil, fmt.Errorf("reshape activations: %w", err)
	}
	cam, err := CAM(acts, headRow)
	if err != nil {
		return nil, fmt.Errorf("class activation map: %w", err)
	}
	return overlay(cam, acts.Height, acts.Width, original, side)
}

// Fallback is the degraded heatmap when no explanation can be produced:
// the original image at the analysis resolution, with no overlay.
func Fallback(original image.Image, side int) image.Image {
	return imaging.ResizeTo(original, side)
}

func overlay(cam []float32, h, w int, original image.Image, side int) (image.Image, error) {
	camMat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV32F)
	defer camMat.Close()
	dst, err := camMat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("cam mat buffer: %w", err)
	}
	copy(dst, cam)

	up := gocv.NewMat()
	defer up.Close()
	gocv.Resize(camMat, &up, image.Pt(side, side), 0, 0, gocv.InterpolationLinear)
	up.MultiplyFloat(255)

	gray := gocv.NewMat()
	defer gray.Close()
	up.ConvertTo(&gray, gocv.MatTypeCV8U)

	colored := gocv.NewMat()
	defer colored.Close()
	gocv.ApplyColorMap(gray, &colored, gocv.ColormapJet)

	base, err := gocv.ImageToMatRGB(imaging.ResizeTo(original, side))
	if err != nil {
		return nil, fmt.Errorf("original to mat: %w", err)
	}
	defer base.Close()

	blended := gocv.NewMat()
	defer blended.Close()
	gocv.AddWeighted(colored, blendAlpha, base, 1-blendAlpha, 0, &blended)

	img, err := blended.ToImage()
	if err != nil {
		return nil, fmt.Errorf("overlay to image: %w", err)
	}
	return img, nil
}
