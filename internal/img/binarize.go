package img

import (
	"image"

	"github.com/disintegration/imaging"
)

const (
	prepBlurSigma = 1.5
	// threshSigma matches a Gaussian adaptive threshold over an 11px block.
	threshSigma = 2.0
	threshC     = 2
)

// Binarize turns a page into light text on a dark background: Gaussian blur,
// grayscale, adaptive Gaussian threshold, invert. The size is unchanged.
func Binarize(src image.Image) image.Image {
	gray := imaging.Grayscale(imaging.Blur(forceOpaque(src), prepBlurSigma))
	local := imaging.Blur(gray, threshSigma)

	out := image.NewNRGBA(gray.Bounds())
	for i := 0; i < len(gray.Pix); i += 4 {
		var v uint8
		if int(gray.Pix[i]) > int(local.Pix[i])-threshC {
			v = 255
		}
		out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = v, v, v, 255
	}
	return imaging.Invert(out)
}
