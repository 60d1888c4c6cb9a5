// Package tesseract binds the OCR pipeline stages to Tesseract through
// gosseract. Each stage owns one client configured with the tessdata prefix
// of its model artifact.
package tesseract

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/emandor/lemme_ocr/internal/img"
	"github.com/emandor/lemme_ocr/internal/models"
	"github.com/emandor/lemme_ocr/internal/ocr"
)

// New builds a pipeline over the artifacts in set. Every artifact must
// already be in the cache; nothing is downloaded here.
func New(cfg ocr.Config, set models.Set) (*ocr.Pipeline, error) {
	if err := checkSet(cfg, set); err != nil {
		return nil, err
	}

	det, err := newClient(set.Det, gosseract.PSM_AUTO, nil)
	if err != nil {
		return nil, err
	}
	vars := lineVars(cfg)
	rec, err := newClient(set.Rec, gosseract.PSM_SINGLE_LINE, vars)
	if err != nil {
		det.Close()
		return nil, err
	}
	stages := ocr.Stages{
		Det:     &Detector{client: det},
		Rec:     &Recognizer{client: rec},
		Closers: []io.Closer{det, rec},
	}
	if cfg.UseAngleCls {
		cls, err := newClient(*set.Cls, gosseract.PSM_SINGLE_LINE, vars)
		if err != nil {
			det.Close()
			rec.Close()
			return nil, err
		}
		stages.Cls = &Classifier{client: cls}
		stages.Closers = append(stages.Closers, cls)
	}
	if cfg.Binarize {
		stages.Prep = img.Binarize
	}
	return ocr.NewPipeline(cfg, stages)
}

func checkSet(cfg ocr.Config, set models.Set) error {
	need := []models.Artifact{set.Det, set.Rec}
	if cfg.UseAngleCls {
		if set.Cls == nil {
			return &models.ModelNotAvailableError{Kind: models.KindClassifier, Lang: set.Lang, Path: "(not provisioned)"}
		}
		need = append(need, *set.Cls)
	}
	for _, a := range need {
		if a.Dir == "" || !exists(a.Path()) {
			return &models.ModelNotAvailableError{Kind: a.Kind, Lang: a.Lang, Path: a.Path()}
		}
	}
	return nil
}

func exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Size() > 0
}

// lineVars are the Tesseract variables for the clients that read lines.
// Detection runs without them so a whitelist cannot hide a line.
func lineVars(cfg ocr.Config) map[string]string {
	vars := map[string]string{}
	if cfg.CharWhitelist != "" {
		vars["tessedit_char_whitelist"] = cfg.CharWhitelist
	}
	return vars
}

func newClient(a models.Artifact, mode gosseract.PageSegMode, vars map[string]string) (*gosseract.Client, error) {
	c := gosseract.NewClient()
	c.SetTessdataPrefix(a.Dir)
	if err := c.SetLanguage(a.Code); err != nil {
		c.Close()
		return nil, fmt.Errorf("tesseract: set language %q: %w", a.Code, err)
	}
	if err := c.SetPageSegMode(mode); err != nil {
		c.Close()
		return nil, fmt.Errorf("tesseract: set page seg mode %d: %w", mode, err)
	}
	for k, v := range vars {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			c.Close()
			return nil, fmt.Errorf("tesseract: set %s: %w", k, err)
		}
	}
	return c, nil
}

// Detector returns text line boxes from Tesseract's layout analysis.
type Detector struct {
	client *gosseract.Client
}

func (d *Detector) Detect(page image.Image) ([]image.Rectangle, error) {
	if err := setImage(d.client, page); err != nil {
		return nil, err
	}
	boxes, err := d.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract: line boxes: %w", err)
	}
	out := make([]image.Rectangle, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" || b.Box.Empty() {
			continue
		}
		out = append(out, b.Box)
	}
	return out, nil
}

// Recognizer reads a single line with the best-accuracy model.
type Recognizer struct {
	client *gosseract.Client
}

func (r *Recognizer) Recognize(line image.Image) (string, float64, error) {
	return readLine(r.client, line)
}

// Classifier reads a line upright and rotated by 180 degrees with the fast
// model and keeps the orientation Tesseract is more confident in.
type Classifier struct {
	client *gosseract.Client
}

func (c *Classifier) Classify(line image.Image) (int, float64, error) {
	_, up, err := readLine(c.client, line)
	if err != nil {
		return 0, 0, err
	}
	_, down, err := readLine(c.client, imaging.Rotate180(line))
	if err != nil {
		return 0, 0, err
	}
	angle, score := orientation(up, down)
	return angle, score, nil
}

// orientation turns two confidences in [0,1] into an angle and a softmax
// score over the pair.
func orientation(up, down float64) (int, float64) {
	const temp = 10.0
	eu, ed := math.Exp(up*temp), math.Exp(down*temp)
	if down > up {
		return 180, ed / (eu + ed)
	}
	return 0, eu / (eu + ed)
}

func readLine(c *gosseract.Client, line image.Image) (string, float64, error) {
	if err := setImage(c, line); err != nil {
		return "", 0, err
	}
	text, err := c.Text()
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: text: %w", err)
	}
	words, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: word boxes: %w", err)
	}
	return strings.TrimSpace(text), meanConfidence(words), nil
}

// meanConfidence averages word confidences, which Tesseract reports on a
// 0-100 scale.
func meanConfidence(words []gosseract.BoundingBox) float64 {
	var sum float64
	var n int
	for _, w := range words {
		if strings.TrimSpace(w.Word) == "" {
			continue
		}
		sum += w.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp01(sum / float64(n) / 100.0)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func setImage(c *gosseract.Client, pic image.Image) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, pic, imaging.PNG); err != nil {
		return fmt.Errorf("tesseract: encode image: %w", err)
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return fmt.Errorf("tesseract: set image: %w", err)
	}
	return nil
}
