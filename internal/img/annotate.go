package img

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/emandor/lemme_ocr/internal/ocr"
)

var (
	boxColor   = color.NRGBA{R: 0xE5, G: 0x39, B: 0x35, A: 0xFF}
	labelColor = color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	flipColor  = color.NRGBA{R: 0x1E, G: 0x88, B: 0xE5, A: 0xFF}
)

const stroke = 2

// Annotate returns a copy of src with each span's box outlined and numbered
// in reading order. Lines read upside down are outlined in blue.
func Annotate(src image.Image, r ocr.Result) *image.NRGBA {
	dst := imaging.Clone(src)
	for i, s := range r.Spans {
		c := boxColor
		if s.Angle == 180 {
			c = flipColor
		}
		outline(dst, s.Box, c)
		label(dst, s.Box, strconv.Itoa(i+1), c)
	}
	return dst
}

func outline(dst *image.NRGBA, box image.Rectangle, c color.Color) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+stroke),
		image.Rect(box.Min.X, box.Max.Y-stroke, box.Max.X, box.Max.Y),
		image.Rect(box.Min.X, box.Min.Y, box.Min.X+stroke, box.Max.Y),
		image.Rect(box.Max.X-stroke, box.Min.Y, box.Max.X, box.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), u, image.Point{}, draw.Src)
	}
}

// label draws text on a filled tag above the box, or inside it when the box
// touches the top edge.
func label(dst *image.NRGBA, box image.Rectangle, text string, bg color.Color) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil() + 4
	h := face.Height + 2

	top := box.Min.Y - h
	if top < dst.Bounds().Min.Y {
		top = box.Min.Y
	}
	tag := image.Rect(box.Min.X, top, box.Min.X+w, top+h).Intersect(dst.Bounds())
	draw.Draw(dst, tag, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(tag.Min.X+2, tag.Min.Y+face.Ascent+1),
	}
	d.DrawString(text)
}
