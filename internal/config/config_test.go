package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, k := range []string{"OCR_LANG", "OCR_USE_ANGLE_CLS", "OCR_INPUT", "OCR_OUTPUT_DIR", "MODEL_HOME", "MODEL_DOWNLOAD_TIMEOUT"} {
		t.Setenv(k, "")
	}

	c := Load()

	assert.Equal(t, "japan", c.OCRLang)
	assert.True(t, c.OCRUseAngleCls)
	assert.False(t, c.OCRVerbose)
	assert.Equal(t, "./banyuukan.png", c.OCRInput)
	assert.Equal(t, "output", c.OCROutputDir)
	assert.InDelta(t, 0.5, c.OCRDropScore, 1e-9)
	assert.InDelta(t, 0.9, c.OCRClsThresh, 1e-9)
	assert.Equal(t, 5*time.Minute, c.ModelDownloadTimeout)
	assert.Equal(t, DefaultRecBaseURL, c.ModelRecBaseURL)
	assert.Equal(t, []string{".jpg", ".jpeg", ".png"}, c.AllowedFileExt)
	assert.Equal(t, "whl", filepath.Base(c.ModelHome))
	assert.Equal(t, ".lemme_ocr", filepath.Base(filepath.Dir(c.ModelHome)))
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OCR_LANG", "en")
	t.Setenv("OCR_USE_ANGLE_CLS", "false")
	t.Setenv("OCR_OUTPUT_DIR", "out")
	t.Setenv("MODEL_HOME", "/tmp/models")
	t.Setenv("ALLOWED_FILE_EXT", ".png")
	t.Setenv("CORS_ORIGINS", "a,b")

	c := Load()

	assert.Equal(t, "en", c.OCRLang)
	assert.False(t, c.OCRUseAngleCls)
	assert.Equal(t, "out", c.OCROutputDir)
	assert.Equal(t, "/tmp/models", c.ModelHome)
	assert.Equal(t, []string{".png"}, c.AllowedFileExt)
	assert.Equal(t, []string{"a", "b"}, c.CORSOrigins)
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "nope")
	assert.Equal(t, 7, GetEnvInt("SOME_INT", 7))
	t.Setenv("SOME_INT", "12")
	assert.Equal(t, 12, GetEnvInt("SOME_INT", 7))
}

func TestModelLayout(t *testing.T) {
	c := &Config{ModelHome: "/cache", ModelDetBaseURL: "d", ModelRecBaseURL: "r", ModelClsBaseURL: "c"}

	l := c.ModelLayout("")
	assert.Equal(t, "/cache", l.Home)
	assert.Equal(t, "r", l.Sources.Rec)

	assert.Equal(t, "/elsewhere", c.ModelLayout("/elsewhere").Home)
}

func TestOCRConfig(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OCR_CHAR_WHITELIST", "万有館B1")
	t.Setenv("OCR_BINARIZE", "true")

	c := Load()
	oc := c.OCRConfig("japan", false)

	assert.Equal(t, "japan", oc.Lang)
	assert.False(t, oc.UseAngleCls)
	assert.Equal(t, "万有館B1", oc.CharWhitelist)
	assert.True(t, oc.Binarize)
	assert.InDelta(t, 0.5, oc.DropScore, 1e-9)
	assert.InDelta(t, 0.9, oc.ClsThresh, 1e-9)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
