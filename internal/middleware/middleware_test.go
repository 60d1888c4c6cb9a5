package middleware

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/lemme_ocr/internal/config"
)

var pngHead = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

func multipartBody(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func uploadApp() *fiber.App {
	cfg := &config.Config{AllowedMaxFileSize: 1, AllowedFileExt: []string{".png", ".jpg"}}
	app := fiber.New()
	app.Post("/up", FileUploadValidator(cfg), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestFileUploadValidator(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content []byte
		status  int
	}{
		{"png ok", "a.png", pngHead, http.StatusOK},
		{"wrong extension", "a.gif", pngHead, http.StatusBadRequest},
		{"content mismatch", "a.jpg", pngHead, http.StatusBadRequest},
		{"too large", "a.png", append(append([]byte{}, pngHead...), make([]byte, 1<<20)...), http.StatusRequestEntityTooLarge},
	}
	app := uploadApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.file, tt.content)
			req := httptest.NewRequest(http.MethodPost, "/up", body)
			req.Header.Set("Content-Type", ct)
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestFileUploadValidatorRejectsNonMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/up", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := uploadApp().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIsValidMagic(t *testing.T) {
	assert.True(t, isValidMagic(".tiff", "application/octet-stream", []byte{'I', 'I', 0x2A, 0}))
	assert.True(t, isValidMagic(".jpeg", "image/jpeg", []byte{0xFF, 0xD8, 0xFF}))
	assert.False(t, isValidMagic(".webp", "image/webp", []byte("RIFF")))
}

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(ReqIDKey).(string))
	})

	const given = "6f1c2a52-9a43-4f39-8f55-1b7b8f6b2f0e"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, given)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, given, resp.Header.Get(fiber.HeaderXRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "not-a-uuid")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	got := resp.Header.Get(fiber.HeaderXRequestID)
	assert.NotEqual(t, "not-a-uuid", got)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, got, string(b))
}

func TestRecover(t *testing.T) {
	app := fiber.New()
	app.Use(Recover())
	app.Get("/", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimiter(1, time.Minute))
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/x", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	for i := 0; i < 3; i++ {
		resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestWSUpgradeRejectsPlainRequests(t *testing.T) {
	app := fiber.New()
	app.Use("/ws", WSUpgrade())
	app.Get("/ws", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
