package img

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// PrepareForOCR: auto-orient → resize (optional) → grayscale (optional) →
// flatten alpha onto white. Tesseract reads opaque images more reliably.
func PrepareForOCR(path string, maxW int, grayscale bool) (image.Image, error) {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	// resize proportional
	if src.Bounds().Dx() > maxW && maxW > 0 {
		src = imaging.Resize(src, maxW, 0, imaging.Lanczos)
	}

	if grayscale {
		src = imaging.Grayscale(src)
	}

	return forceOpaque(src), nil
}

// convert alpha to white
func forceOpaque(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
