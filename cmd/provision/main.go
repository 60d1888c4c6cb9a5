package main

import (
	"context"
	"flag"
	"os"

	"github.com/emandor/lemme_ocr/internal/config"
	"github.com/emandor/lemme_ocr/internal/models"
	"github.com/emandor/lemme_ocr/internal/telemetry"
)

func main() {
	cfg := config.Load()

	lang := flag.String("lang", cfg.OCRLang, "model language, e.g. japan")
	angleCls := flag.Bool("angle-cls", cfg.OCRUseAngleCls, "also provision the angle classification model")
	home := flag.String("home", cfg.ModelHome, "model cache root")
	verbose := flag.Bool("verbose", cfg.OCRVerbose, "verbose logging")
	flag.Parse()

	tlog := telemetry.Init(telemetry.ForCLI(telemetry.FromEnv(config.GetEnv), *verbose))

	p := models.NewProvisioner(cfg.ModelLayout(*home), models.NewHTTPFetcher(
		cfg.ModelDownloadTimeout,
		cfg.ModelDownloadRPS,
		cfg.ModelDownloadBurst,
		cfg.ModelDownloadRetries,
	))

	set, err := p.Ensure(context.Background(), *lang, *angleCls)
	if err != nil {
		tlog.Error().Err(err).Str("lang", *lang).Msg("provision_failed")
		os.Exit(1)
	}
	if err := set.Print(os.Stdout); err != nil {
		tlog.Error().Err(err).Msg("print_failed")
		os.Exit(1)
	}
}
