package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/emandor/lemme_ocr/internal/telemetry"
)

// Detector finds text line boxes in a page.
type Detector interface {
	Detect(img image.Image) ([]image.Rectangle, error)
}

// Classifier reports whether a cropped line reads upright (0) or upside
// down (180), with a confidence in [0,1].
type Classifier interface {
	Classify(line image.Image) (angle int, score float64, err error)
}

// Recognizer reads the text of a cropped, upright line.
type Recognizer interface {
	Recognize(line image.Image) (text string, score float64, err error)
}

// Stages bundles the pipeline stages. Cls may be nil.
type Stages struct {
	// Prep filters the page before detection when Config.Binarize is set.
	// It must keep the page size so boxes map back onto the source.
	Prep func(image.Image) image.Image
	Det  Detector
	Cls  Classifier
	Rec  Recognizer
	// Closers are released by Pipeline.Close.
	Closers []io.Closer
}

// Pipeline runs detection, optional angle correction and recognition over a
// single image. It is not safe for concurrent use.
type Pipeline struct {
	cfg    Config
	stages Stages
}

func NewPipeline(cfg Config, stages Stages) (*Pipeline, error) {
	if stages.Det == nil || stages.Rec == nil {
		return nil, errors.New("ocr: detector and recognizer are required")
	}
	if cfg.UseAngleCls && stages.Cls == nil {
		return nil, errors.New("ocr: angle classification enabled without a classifier")
	}
	if cfg.Binarize && stages.Prep == nil {
		return nil, errors.New("ocr: binarization enabled without a preprocessor")
	}
	return &Pipeline{cfg: cfg, stages: stages}, nil
}

func (p *Pipeline) Config() Config { return p.cfg }

// Predict recognizes the image at path and returns one Result for it.
func (p *Pipeline) Predict(ctx context.Context, path string) ([]Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &InputNotFoundError{Path: path, Err: err}
	}
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("ocr: decode %s: %w", path, err)
	}
	res, err := p.PredictImage(ctx, src)
	if err != nil {
		return nil, err
	}
	res.InputPath = path
	return []Result{res}, nil
}

// PredictImage runs the stages over an already decoded image.
func (p *Pipeline) PredictImage(ctx context.Context, src image.Image) (Result, error) {
	log := telemetry.L().With().Str("module", "ocr").Str("lang", p.cfg.Lang).Logger()
	b := src.Bounds()
	res := Result{
		Lang:        p.cfg.Lang,
		UseAngleCls: p.cfg.UseAngleCls,
		Width:       b.Dx(),
		Height:      b.Dy(),
	}

	if p.cfg.Binarize {
		src = p.stages.Prep(src)
		if src.Bounds().Size() != b.Size() {
			return Result{}, errors.New("ocr: preprocessor changed the page size")
		}
		b = src.Bounds()
		log.Debug().Msg("prep_done")
	}

	boxes, err := p.stages.Det.Detect(src)
	if err != nil {
		return Result{}, fmt.Errorf("ocr: detect: %w", err)
	}
	boxes = SortBoxes(clipBoxes(boxes, b))
	log.Debug().Int("boxes", len(boxes)).Msg("det_done")

	for i, box := range boxes {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		line := image.Image(imaging.Crop(src, box))

		angle := 0
		if p.cfg.UseAngleCls {
			a, score, err := p.stages.Cls.Classify(line)
			if err != nil {
				return Result{}, fmt.Errorf("ocr: classify line %d: %w", i, err)
			}
			if a == 180 && score >= p.cfg.ClsThresh {
				line = imaging.Rotate180(line)
				angle = 180
			}
			log.Debug().Int("line", i).Int("angle", a).Float64("score", score).Msg("cls")
		}

		text, score, err := p.stages.Rec.Recognize(line)
		if err != nil {
			return Result{}, fmt.Errorf("ocr: recognize line %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" || score < p.cfg.DropScore {
			log.Debug().Int("line", i).Float64("score", score).Msg("rec_dropped")
			continue
		}
		res.Spans = append(res.Spans, Span{Text: text, Score: score, Box: box, Angle: angle})
	}
	log.Debug().Int("spans", len(res.Spans)).Msg("rec_done")
	return res, nil
}

// Close releases stage resources.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.stages.Closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// lineTolerance is how far apart, in pixels, two box tops may be while still
// counting as the same row.
const lineTolerance = 10

// SortBoxes orders boxes top to bottom, then left to right within a row.
func SortBoxes(boxes []image.Rectangle) []image.Rectangle {
	out := append([]image.Rectangle(nil), boxes...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Min.Y != out[j].Min.Y {
			return out[i].Min.Y < out[j].Min.Y
		}
		return out[i].Min.X < out[j].Min.X
	})
	// adjacent boxes on the same row go left to right
	for i := 0; i+1 < len(out); i++ {
		for j := i; j >= 0; j-- {
			a, b := out[j], out[j+1]
			if abs(b.Min.Y-a.Min.Y) < lineTolerance && b.Min.X < a.Min.X {
				out[j], out[j+1] = b, a
				continue
			}
			break
		}
	}
	return out
}

func clipBoxes(boxes []image.Rectangle, bounds image.Rectangle) []image.Rectangle {
	out := boxes[:0:0]
	for _, b := range boxes {
		b = b.Canon().Intersect(bounds)
		if b.Empty() {
			continue
		}
		out = append(out, b)
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
