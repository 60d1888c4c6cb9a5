package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/lemme_ocr/internal/config"
	"github.com/emandor/lemme_ocr/internal/models"
	"github.com/emandor/lemme_ocr/internal/ocr"
	"github.com/emandor/lemme_ocr/internal/runner"
)

type boxDet struct{}

func (boxDet) Detect(img image.Image) ([]image.Rectangle, error) {
	b := img.Bounds()
	return []image.Rectangle{image.Rect(1, 1, b.Dx()-1, b.Dy()-1)}, nil
}

type fixedRec struct{}

func (fixedRec) Recognize(image.Image) (string, float64, error) { return "hello", 0.9, nil }

func fakeEngine(cfg ocr.Config, _ models.Set) (runner.Engine, error) {
	return ocr.NewPipeline(cfg, ocr.Stages{Det: boxDet{}, Rec: fixedRec{}})
}

// seed writes every artifact of the plan so Resolve succeeds offline.
func seed(t *testing.T, l models.Layout, lang string) {
	t.Helper()
	plan, err := l.Plan(lang, false)
	require.NoError(t, err)
	for _, a := range plan {
		require.NoError(t, os.MkdirAll(a.Dir, 0o755))
		require.NoError(t, os.WriteFile(a.Path(), []byte("model"), 0o644))
	}
}

func newApp(t *testing.T, seedLang string) (*fiber.App, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		OCRLang:      "en",
		OCRDropScore: 0.5,
		OCRClsThresh: 0.9,
		StorageDir:   t.TempDir(),
	}
	layout := cfg.ModelLayout(t.TempDir())
	if seedLang != "" {
		seed(t, layout, seedLang)
	}
	h := NewHandler(cfg, models.NewProvisioner(layout, nil), fakeEngine)

	app := fiber.New()
	app.Get("/api/v1/models/:lang", h.GetModels)
	app.Post("/api/v1/ocr", h.CreateJob)
	return app, cfg
}

func postJob(t *testing.T, app *fiber.App, fields map[string]string) (int, map[string]any) {
	t.Helper()
	var png bytes.Buffer
	require.NoError(t, imaging.Encode(&png, imaging.New(60, 20, color.White), imaging.PNG))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "sign.png")
	require.NoError(t, err)
	_, _ = fw.Write(png.Bytes())
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/ocr", &body)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestCreateJob(t *testing.T) {
	app, cfg := newApp(t, "en")

	status, out := postJob(t, app, map[string]string{"angle_cls": "false"})
	require.Equal(t, fiber.StatusOK, status, out)

	id, _ := out["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "en", out["lang"])

	results := out["results"].([]any)
	require.Len(t, results, 1)
	spans := results[0].(map[string]any)["spans"].([]any)
	require.Len(t, spans, 1)
	assert.Equal(t, "hello", spans[0].(map[string]any)["text"])

	files := out["files"].([]any)
	require.Len(t, files, 1)
	f := files[0].(map[string]any)
	assert.True(t, strings.HasPrefix(f["json"].(string), "/output/"+id+"/"), f["json"])
	assert.FileExists(t, filepath.Join(cfg.StorageDir, "output", id, filepath.Base(f["json"].(string))))

	uploads, err := os.ReadDir(filepath.Join(cfg.StorageDir, "uploads"))
	require.NoError(t, err)
	assert.Len(t, uploads, 1)
}

func TestCreateJobWithoutModels(t *testing.T) {
	app, cfg := newApp(t, "")

	status, out := postJob(t, app, map[string]string{"angle_cls": "false"})
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Contains(t, out["error"], "not found")
	assert.NoDirExists(t, filepath.Join(cfg.StorageDir, "output"))
}

func TestCreateJobRequiresImage(t *testing.T) {
	app, _ := newApp(t, "en")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("lang", "en"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/ocr", &body)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())

	status, out := do(t, app, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "image required", out["error"])
}

func TestGetModels(t *testing.T) {
	app, _ := newApp(t, "en")

	status, out := do(t, app, httptest.NewRequest(fiber.MethodGet, "/api/v1/models/en?angle_cls=false", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["available"])

	status, out = do(t, app, httptest.NewRequest(fiber.MethodGet, "/api/v1/models/japan?angle_cls=false", nil))
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, out["available"])
	assert.Equal(t, "det", out["missing"])

	status, _ = do(t, app, httptest.NewRequest(fiber.MethodGet, "/api/v1/models/klingon", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		&models.ConfigurationError{Lang: "x", Err: models.ErrUnknownLanguage}: fiber.StatusBadRequest,
		&models.DownloadError{Err: errors.New("eof")}:                         fiber.StatusBadGateway,
		&models.ModelNotAvailableError{Kind: models.KindRecognizer}:           fiber.StatusServiceUnavailable,
		&ocr.InputNotFoundError{Path: "a.png"}:                                fiber.StatusBadRequest,
		errors.New("boom"):                                                     fiber.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestExclusiveReleasesLockOnPanic(t *testing.T) {
	h := &Handler{}
	assert.Panics(t, func() {
		_ = h.exclusive(func() error { panic("engine crashed") })
	})

	done := make(chan struct{})
	go func() {
		_ = h.exclusive(func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job lock still held after panic")
	}
}
