// Package output renders recognition results: a printed summary, an
// annotated image and a JSON document. The functions here never mutate the
// result they are given.
package output

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/emandor/lemme_ocr/internal/img"
	"github.com/emandor/lemme_ocr/internal/ocr"
)

// Encoder turns a result into a JSON-serializable document. The document
// shape belongs to the encoder; callers treat it as opaque.
type Encoder interface {
	Encode(r ocr.Result) any
}

// Print writes a human-readable summary of r.
func Print(w io.Writer, r ocr.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "input: %s (%dx%d) lang=%s angle_cls=%t\n", r.InputPath, r.Width, r.Height, r.Lang, r.UseAngleCls)
	fmt.Fprintf(&b, "spans: %d\n", len(r.Spans))
	for i, s := range r.Spans {
		p := s.Poly()
		fmt.Fprintf(&b, "  [%d] %q score=%.4f angle=%d box=[[%d,%d],[%d,%d],[%d,%d],[%d,%d]]\n",
			i+1, s.Text, s.Score, s.Angle,
			p[0].X, p[0].Y, p[1].X, p[1].Y, p[2].X, p[2].Y, p[3].X, p[3].Y)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Stem is the input file name without directory and extension.
func Stem(r ocr.Result) string {
	base := filepath.Base(r.InputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "result"
	}
	return stem
}

// ImagePath is where SaveImage writes the annotated copy of r's input. The
// input extension is kept when it can be encoded, PNG otherwise. When that
// would be the input file itself the name gets an "_ocr" suffix.
func ImagePath(dir string, r ocr.Result) string {
	ext := strings.ToLower(filepath.Ext(r.InputPath))
	if _, err := imaging.FormatFromExtension(ext); err != nil || ext == "" {
		ext = ".png"
	}
	p := filepath.Join(dir, Stem(r)+ext)
	if samePath(p, r.InputPath) {
		// never draw over the source image
		p = filepath.Join(dir, Stem(r)+"_ocr"+ext)
	}
	return p
}

func samePath(a, b string) bool {
	aa, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	bb, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	if aa == bb {
		return true
	}
	sa, errA := os.Stat(aa)
	sb, errB := os.Stat(bb)
	return errA == nil && errB == nil && os.SameFile(sa, sb)
}

// JSONPath is where SaveJSON writes r's document.
func JSONPath(dir string, r ocr.Result) string {
	return filepath.Join(dir, Stem(r)+".json")
}

// SaveImage draws r onto src and writes it under dir, creating dir if needed.
func SaveImage(dir string, r ocr.Result, src image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := ImagePath(dir, r)
	if err := imaging.Save(img.Annotate(src, r), path); err != nil {
		return "", fmt.Errorf("output: save image %s: %w", path, err)
	}
	return path, nil
}

// SaveJSON encodes r with enc and writes it under dir, creating dir if
// needed. A nil enc uses PaddleEncoder.
func SaveJSON(dir string, r ocr.Result, enc Encoder) (string, error) {
	if enc == nil {
		enc = PaddleEncoder{}
	}
	b, err := json.MarshalIndent(enc.Encode(r), "", "  ")
	if err != nil {
		return "", fmt.Errorf("output: encode json: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := JSONPath(dir, r)
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("output: save json %s: %w", path, err)
	}
	return path, nil
}
