package ocr

import (
	"fmt"
	"image"
)

type Config struct {
	Lang        string
	UseAngleCls bool
	Verbose     bool
	// DropScore discards spans recognized below this confidence.
	DropScore float64
	// ClsThresh is the minimum classifier confidence to rotate a line.
	ClsThresh float64
	// CharWhitelist limits recognition to these characters when set.
	CharWhitelist string
	// Binarize runs the Stages.Prep filter over the page before detection.
	Binarize bool
}

func DefaultConfig(lang string) Config {
	return Config{Lang: lang, UseAngleCls: true, DropScore: 0.5, ClsThresh: 0.9}
}

// Point is a pixel coordinate in the source image.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Span is one recognized text line.
type Span struct {
	Text  string          `json:"text"`
	Score float64         `json:"score"`
	Box   image.Rectangle `json:"-"`
	// Angle is 0 or 180, the orientation the line was read in.
	Angle int `json:"angle"`
}

// Poly returns the box corners clockwise from the top-left.
func (s Span) Poly() [4]Point {
	b := s.Box
	return [4]Point{
		{b.Min.X, b.Min.Y},
		{b.Max.X, b.Min.Y},
		{b.Max.X, b.Max.Y},
		{b.Min.X, b.Max.Y},
	}
}

// Result is the recognition output for one input image.
type Result struct {
	InputPath   string
	Lang        string
	UseAngleCls bool
	Width       int
	Height      int
	Spans       []Span
}

// Texts returns the span texts in reading order.
func (r Result) Texts() []string {
	out := make([]string, len(r.Spans))
	for i, s := range r.Spans {
		out[i] = s.Text
	}
	return out
}

// InputNotFoundError reports an input image path that does not resolve.
type InputNotFoundError struct {
	Path string
	Err  error
}

func (e *InputNotFoundError) Error() string {
	return fmt.Sprintf("ocr: input %s not found: %v", e.Path, e.Err)
}

func (e *InputNotFoundError) Unwrap() error { return e.Err }
