// Package runner drives one inference run: configure, infer, then print and
// persist every result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/disintegration/imaging"

	"github.com/emandor/lemme_ocr/internal/models"
	"github.com/emandor/lemme_ocr/internal/ocr"
	"github.com/emandor/lemme_ocr/internal/output"
	"github.com/emandor/lemme_ocr/internal/telemetry"
)

type Options struct {
	InputPath string
	OutputDir string
	OCR       ocr.Config
}

// Resolver locates provisioned models without downloading.
type Resolver interface {
	Resolve(lang string, useAngleCls bool) (models.Set, error)
}

type Engine interface {
	Predict(ctx context.Context, path string) ([]ocr.Result, error)
	Close() error
}

type EngineFactory func(cfg ocr.Config, set models.Set) (Engine, error)

type Deps struct {
	Models    Resolver
	NewEngine EngineFactory
	// Encoder shapes the JSON documents; nil uses output.PaddleEncoder.
	Encoder output.Encoder
	Out     io.Writer
}

// Files lists what was written for one result.
type Files struct {
	Image string `json:"image"`
	JSON  string `json:"json"`
}

type Report struct {
	Elapsed time.Duration
	Results []ocr.Result
	Files   []Files
}

// Minutes is the elapsed time as printed.
func (r Report) Minutes() float64 { return r.Elapsed.Minutes() }

// Run executes the inference sequence. A missing input fails before anything
// is written.
func Run(ctx context.Context, opts Options, deps Deps) (Report, error) {
	if deps.Models == nil || deps.NewEngine == nil {
		return Report{}, errors.New("runner: models and engine factory are required")
	}
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	log := telemetry.L().With().Str("module", "runner").Str("input", opts.InputPath).Logger()

	if _, err := os.Stat(opts.InputPath); err != nil {
		return Report{}, &ocr.InputNotFoundError{Path: opts.InputPath, Err: err}
	}

	set, err := deps.Models.Resolve(opts.OCR.Lang, opts.OCR.UseAngleCls)
	if err != nil {
		return Report{}, err
	}
	engine, err := deps.NewEngine(opts.OCR, set)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("engine_close_failed")
		}
	}()

	start := time.Now()
	results, err := engine.Predict(ctx, opts.InputPath)
	elapsed := time.Since(start)
	if err != nil {
		return Report{}, err
	}
	log.Info().Dur("elapsed", elapsed).Int("results", len(results)).Msg("predict_done")

	rep := Report{Elapsed: elapsed, Results: results}
	if _, err := fmt.Fprintf(out, "time: %.2f\n", rep.Minutes()); err != nil {
		return rep, err
	}

	for _, res := range results {
		files, err := persist(out, opts.OutputDir, res, deps.Encoder)
		if err != nil {
			return rep, err
		}
		log.Debug().Str("image", files.Image).Str("json", files.JSON).Msg("result_saved")
		rep.Files = append(rep.Files, files)
	}
	return rep, nil
}

// persist prints res, then writes its annotated image, then its JSON.
func persist(out io.Writer, dir string, res ocr.Result, enc output.Encoder) (Files, error) {
	if err := output.Print(out, res); err != nil {
		return Files{}, err
	}
	src, err := imaging.Open(res.InputPath, imaging.AutoOrientation(true))
	if err != nil {
		return Files{}, fmt.Errorf("runner: reopen %s: %w", res.InputPath, err)
	}
	imgPath, err := output.SaveImage(dir, res, src)
	if err != nil {
		return Files{}, err
	}
	jsonPath, err := output.SaveJSON(dir, res, enc)
	if err != nil {
		return Files{}, err
	}
	return Files{Image: imgPath, JSON: jsonPath}, nil
}
