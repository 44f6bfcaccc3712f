package liveness

import (
	"image"

	"golang.org/x/image/draw"
)

// TextureScore normalizes the frame's Laplacian variance into [0,1] by
// dividing by the calibration constant and clamping. Flat surfaces such
// as screens and printed photos smooth away high-frequency detail and
// score low.
func (a *Analyzer) TextureScore(img image.Image) float64 {
	score := LaplacianVariance(img) / a.cfg.TextureNormConstant
	if score > 1 {
		score = 1
	}
	return score
}

// LaplacianVariance computes the variance of the 4-neighbor Laplacian
// over the grayscale frame, a standard edge-detail measure.
func LaplacianVariance(img image.Image) float64 {
	gray := toGray(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	var sum, sumSq float64
	count := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			lap := float64(gray.GrayAt(bounds.Min.X+x-1, bounds.Min.Y+y).Y) +
				float64(gray.GrayAt(bounds.Min.X+x+1, bounds.Min.Y+y).Y) +
				float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y-1).Y) +
				float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y+1).Y) -
				4*center

			sum += lap
			sumSq += lap * lap
			count++
		}
	}

	if count == 0 {
		return 0
	}

	mean := sum / float64(count)
	return sumSq/float64(count) - mean*mean
}

// toGray converts an image to grayscale, reusing it when already gray.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}
