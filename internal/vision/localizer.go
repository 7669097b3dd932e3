// Package vision implements the saliency-based auto-focus crop that isolates
// the dominant lesion before the inference pipeline runs.
package vision

import (
	"image"
	"image/draw"
	"log/slog"
	"slices"

	"gocv.io/x/gocv"
)

// Localizer finds the single most visually distinct region of a skin photo
// and crops to its padded bounding box. It is a color heuristic, not a
// trained detector: a missed lesion degrades to "no crop", never to a wrong
// crop. The output is always a true sub-rectangle of the input with no
// pixel values altered.
type Localizer struct {
	// MinSide rejects images too small to localize; they pass through unchanged.
	MinSide int
	// BorderBand is the fraction of each dimension sampled as background.
	BorderBand float64
	// Percentile of the color-distance distribution used as the
	// foreground threshold.
	Percentile float64
	// MinAreaRatio is the smallest region area (relative to the image)
	// still considered a confident lesion match.
	MinAreaRatio float64
	// PadRatio expands the winning bounding box on each side; MinPad is
	// the pixel floor of that expansion.
	PadRatio float64
	MinPad   int
}

// NewLocalizer returns a Localizer with the tuned production defaults.
func NewLocalizer() *Localizer {
	return &Localizer{
		MinSide:      32,
		BorderBand:   0.10,
		Percentile:   65,
		MinAreaRatio: 0.015,
		PadRatio:     0.08,
		MinPad:       6,
	}
}

// Focus returns a tight crop around the dominant lesion, or the input
// unchanged when no region stands out confidently. It never returns an
// empty image and never fails: any internal error falls back to the input.
func (l *Localizer) Focus(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() < l.MinSide || b.Dy() < l.MinSide {
		return img
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		slog.Warn("auto-focus: image to mat conversion failed", "error", err)
		return img
	}
	defer mat.Close()

	rect, ok := l.locate(mat)
	if !ok {
		return img
	}
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return img
	}
	return subRect(img, rect.Add(b.Min))
}

// locate runs the saliency pipeline on a BGR mat and returns the padded,
// clamped bounding rectangle of the dominant region.
func (l *Localizer) locate(mat gocv.Mat) (image.Rectangle, bool) {
	h, w := mat.Rows(), mat.Cols()

	// Perceptually uniform color space so Euclidean distance approximates
	// visual difference.
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(mat, &lab, gocv.ColorBGRToLab)

	labF := gocv.NewMat()
	defer labF.Close()
	lab.ConvertTo(&labF, gocv.MatTypeCV32FC3)

	// Background reference: mean Lab color of a border band.
	bandH := max(2, int(float64(h)*l.BorderBand))
	bandW := max(2, int(float64(w)*l.BorderBand))
	border := gocv.Zeros(h, w, gocv.MatTypeCV8U)
	defer border.Close()
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, w, bandH),
		image.Rect(0, h-bandH, w, h),
		image.Rect(0, 0, bandW, h),
		image.Rect(w-bandW, 0, w, h),
	} {
		region := border.Region(r)
		region.SetTo(gocv.NewScalar(255, 0, 0, 0))
		region.Close()
	}
	bg := labF.MeanWithMask(border)

	// Squared per-pixel distance from the background mean. The percentile
	// threshold is order-preserving, so the square root is skipped.
	dist := gocv.Zeros(h, w, gocv.MatTypeCV32F)
	defer dist.Close()
	channels := gocv.Split(labF)
	bgVals := []float64{bg.Val1, bg.Val2, bg.Val3}
	for i := range channels {
		if i < 3 {
			channels[i].SubtractFloat(float32(bgVals[i]))
			sq := gocv.NewMat()
			gocv.Multiply(channels[i], channels[i], &sq)
			gocv.Add(dist, sq, &dist)
			sq.Close()
		}
		channels[i].Close()
	}

	vals, err := dist.DataPtrFloat32()
	if err != nil || len(vals) == 0 {
		slog.Warn("auto-focus: distance map read failed", "error", err)
		return image.Rectangle{}, false
	}
	thresh := percentile(vals, l.Percentile)

	fg := gocv.NewMat()
	defer fg.Close()
	gocv.Threshold(dist, &fg, thresh, 255, gocv.ThresholdBinary)
	bin := gocv.NewMat()
	defer bin.Close()
	fg.ConvertTo(&bin, gocv.MatTypeCV8U)

	// Close merges the candidate pixels into solid blobs, open removes
	// speckle. Kernels scale with the image so behavior is resolution
	// independent.
	minDim := min(w, h)
	closeK := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(scaledKernel(17, minDim), scaledKernel(17, minDim)))
	defer closeK.Close()
	openK := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(scaledKernel(9, minDim), scaledKernel(9, minDim)))
	defer openK.Close()
	gocv.MorphologyExWithParams(bin, &bin, gocv.MorphClose, closeK, 3, gocv.BorderConstant)
	gocv.MorphologyExWithParams(bin, &bin, gocv.MorphOpen, openK, 1, gocv.BorderConstant)

	contours := gocv.FindContours(bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return image.Rectangle{}, false
	}

	bestIdx, bestArea := 0, 0.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > bestArea {
			bestIdx, bestArea = i, a
		}
	}
	if bestArea < l.MinAreaRatio*float64(w)*float64(h) {
		// Region too small to be confidently a lesion.
		return image.Rectangle{}, false
	}

	r := gocv.BoundingRect(contours.At(bestIdx))
	padX := max(l.MinPad, int(l.PadRatio*float64(r.Dx())))
	padY := max(l.MinPad, int(l.PadRatio*float64(r.Dy())))
	return image.Rect(
		max(0, r.Min.X-padX),
		max(0, r.Min.Y-padY),
		min(w, r.Max.X+padX),
		min(h, r.Max.Y+padY),
	), true
}

// scaledKernel maps a base kernel size tuned at 512px to the current image
// scale, kept odd and within sane bounds.
func scaledKernel(base, minDim int) int {
	k := base * minDim / 512
	if k < 3 {
		k = 3
	}
	if k > 2*base+1 {
		k = 2*base + 1
	}
	if k%2 == 0 {
		k++
	}
	return k
}

// percentile returns the p-th percentile of vals using the nearest-rank
// method. vals is not modified.
func percentile(vals []float32, p float64) float32 {
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(p / 100 * float64(len(sorted)-1))
	return sorted[idx]
}

// subRect extracts a rectangle of img as a standalone image.
func subRect(img image.Image, rect image.Rectangle) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}
