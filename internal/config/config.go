package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/emandor/lemme_ocr/internal/models"
	"github.com/emandor/lemme_ocr/internal/ocr"
)

const (
	DefaultDetBaseURL = "https://github.com/tesseract-ocr/tessdata/raw/main"
	DefaultRecBaseURL = "https://github.com/tesseract-ocr/tessdata_best/raw/main"
	DefaultClsBaseURL = "https://github.com/tesseract-ocr/tessdata_fast/raw/main"
)

type Config struct {
	AppEnv, AppPort string

	OCRLang          string
	OCRUseAngleCls   bool
	OCRVerbose       bool
	OCRInput         string
	OCROutputDir     string
	OCRDropScore     float64
	OCRClsThresh     float64
	OCRCharWhitelist string
	OCRBinarize      bool

	ModelHome            string
	ModelDetBaseURL      string
	ModelRecBaseURL      string
	ModelClsBaseURL      string
	ModelDownloadTimeout time.Duration
	ModelDownloadRPS     int
	ModelDownloadBurst   int
	ModelDownloadRetries int

	StorageDir         string
	CORSOrigins        []string
	MaxBodyLimit       int
	AllowedMaxFileSize int
	AllowedFileExt     []string
	RateLimitMax       int
}

func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		AppEnv:               get("APP_ENV", "dev"),
		AppPort:              get("APP_PORT", "8080"),
		OCRLang:              get("OCR_LANG", "japan"),
		OCRUseAngleCls:       parseBool(get("OCR_USE_ANGLE_CLS", "true")),
		OCRVerbose:           parseBool(get("OCR_VERBOSE", "false")),
		OCRInput:             get("OCR_INPUT", "./banyuukan.png"),
		OCROutputDir:         get("OCR_OUTPUT_DIR", "output"),
		OCRDropScore:         parseFloat(get("OCR_DROP_SCORE", "0.5")),
		OCRClsThresh:         parseFloat(get("OCR_CLS_THRESH", "0.9")),
		OCRCharWhitelist:     get("OCR_CHAR_WHITELIST", ""),
		OCRBinarize:          parseBool(get("OCR_BINARIZE", "false")),
		ModelHome:            get("MODEL_HOME", DefaultModelHome()),
		ModelDetBaseURL:      get("MODEL_DET_BASE_URL", DefaultDetBaseURL),
		ModelRecBaseURL:      get("MODEL_REC_BASE_URL", DefaultRecBaseURL),
		ModelClsBaseURL:      get("MODEL_CLS_BASE_URL", DefaultClsBaseURL),
		ModelDownloadTimeout: mustDuration(get("MODEL_DOWNLOAD_TIMEOUT", "5m")),
		ModelDownloadRPS:     atoi(get("MODEL_DOWNLOAD_RPS", "2")),
		ModelDownloadBurst:   atoi(get("MODEL_DOWNLOAD_BURST", "2")),
		ModelDownloadRetries: atoi(get("MODEL_DOWNLOAD_RETRIES", "3")),
		StorageDir:           get("STORAGE_DIR", "./storage"),
		CORSOrigins:          split(get("CORS_ORIGINS", "http://localhost:5173")),
		MaxBodyLimit:         GetEnvInt("MAX_BODY_LIMIT", 8),
		AllowedMaxFileSize:   GetEnvInt("ALLOWED_MAX_FILE_SIZE", 5),
		AllowedFileExt:       GetEnvList("ALLOWED_FILE_EXT", []string{".jpg", ".jpeg", ".png"}),
		RateLimitMax:         GetEnvInt("RATE_LIMIT_MAX", 60),
	}
	return c
}

// OCRConfig is the pipeline configuration for lang with the configured
// thresholds and preprocessing.
func (c *Config) OCRConfig(lang string, useAngleCls bool) ocr.Config {
	return ocr.Config{
		Lang:          lang,
		UseAngleCls:   useAngleCls,
		Verbose:       c.OCRVerbose,
		DropScore:     c.OCRDropScore,
		ClsThresh:     c.OCRClsThresh,
		CharWhitelist: c.OCRCharWhitelist,
		Binarize:      c.OCRBinarize,
	}
}

// ModelLayout places the model cache at home (ModelHome when empty) with the
// configured download sources.
func (c *Config) ModelLayout(home string) models.Layout {
	if home == "" {
		home = c.ModelHome
	}
	return models.Layout{
		Home: home,
		Sources: models.Sources{
			Det: c.ModelDetBaseURL,
			Rec: c.ModelRecBaseURL,
			Cls: c.ModelClsBaseURL,
		},
	}
}

// DefaultModelHome is a hidden directory under the user's home, or under the
// working directory when no home can be determined.
func DefaultModelHome() string {
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, ".lemme_ocr", "whl")
	}
	return filepath.Join(".lemme_ocr", "whl")
}

func GetEnvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return d
}

func GetEnvList(k string, d []string) []string {
	if v := os.Getenv(k); v != "" {
		return strings.Split(v, ",")
	}
	return d
}

func get(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func atoi(s string) int           { i, _ := strconv.Atoi(s); return i }
func parseBool(s string) bool     { b, _ := strconv.ParseBool(s); return b }
func parseFloat(s string) float64 { f, _ := strconv.ParseFloat(s, 64); return f }
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func GetEnv(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
