package main

import (
	"context"
	"flag"
	"os"

	"github.com/emandor/lemme_ocr/internal/config"
	"github.com/emandor/lemme_ocr/internal/models"
	"github.com/emandor/lemme_ocr/internal/ocr"
	"github.com/emandor/lemme_ocr/internal/ocr/tesseract"
	"github.com/emandor/lemme_ocr/internal/runner"
	"github.com/emandor/lemme_ocr/internal/telemetry"
)

func main() {
	cfg := config.Load()

	input := flag.String("input", cfg.OCRInput, "image to recognize")
	outDir := flag.String("output", cfg.OCROutputDir, "directory for annotated images and JSON")
	lang := flag.String("lang", cfg.OCRLang, "model language, e.g. japan")
	angleCls := flag.Bool("angle-cls", cfg.OCRUseAngleCls, "correct upside-down text lines")
	home := flag.String("home", cfg.ModelHome, "model cache root")
	verbose := flag.Bool("verbose", cfg.OCRVerbose, "verbose logging")
	whitelist := flag.String("whitelist", cfg.OCRCharWhitelist, "only recognize these characters")
	binarize := flag.Bool("binarize", cfg.OCRBinarize, "binarize the page before detection")
	flag.Parse()

	cfg.OCRVerbose = *verbose
	cfg.OCRCharWhitelist = *whitelist
	cfg.OCRBinarize = *binarize

	tlog := telemetry.Init(telemetry.ForCLI(telemetry.FromEnv(config.GetEnv), *verbose))

	opts := runner.Options{
		InputPath: *input,
		OutputDir: *outDir,
		OCR:       cfg.OCRConfig(*lang, *angleCls),
	}
	deps := runner.Deps{
		Models: models.NewProvisioner(cfg.ModelLayout(*home), nil),
		NewEngine: func(c ocr.Config, set models.Set) (runner.Engine, error) {
			return tesseract.New(c, set)
		},
		Out: os.Stdout,
	}

	if _, err := runner.Run(context.Background(), opts, deps); err != nil {
		tlog.Error().Err(err).Str("input", *input).Msg("inference_failed")
		os.Exit(1)
	}
}
