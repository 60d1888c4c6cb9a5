package api

import (
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/emandor/lemme_ocr/internal/config"
	"github.com/emandor/lemme_ocr/internal/img"
	"github.com/emandor/lemme_ocr/internal/middleware"
	"github.com/emandor/lemme_ocr/internal/models"
	"github.com/emandor/lemme_ocr/internal/ocr"
	"github.com/emandor/lemme_ocr/internal/output"
	"github.com/emandor/lemme_ocr/internal/runner"
	"github.com/emandor/lemme_ocr/internal/telemetry"
	"github.com/emandor/lemme_ocr/internal/ws"
)

// Handler serves model provisioning and OCR jobs. Provisioning and
// inference share one lock so the pipeline only ever runs one job.
type Handler struct {
	cfg       *config.Config
	prov      *models.Provisioner
	newEngine runner.EngineFactory
	mu        sync.Mutex
}

func NewHandler(cfg *config.Config, prov *models.Provisioner, newEngine runner.EngineFactory) *Handler {
	prov.OnEvent(ws.BroadcastModelEvent)
	return &Handler{cfg: cfg, prov: prov, newEngine: newEngine}
}

func (h *Handler) UploadDir() string { return filepath.Join(h.cfg.StorageDir, "uploads") }
func (h *Handler) OutputDir() string { return filepath.Join(h.cfg.StorageDir, "output") }

// GetModels reports whether the models for :lang are already cached.
func (h *Handler) GetModels(c *fiber.Ctx) error {
	lang := c.Params("lang")
	angle := c.QueryBool("angle_cls", true)

	set, err := h.prov.Resolve(lang, angle)
	var nerr *models.ModelNotAvailableError
	if errors.As(err, &nerr) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"lang":      lang,
			"available": false,
			"missing":   nerr.Kind,
			"error":     err.Error(),
		})
	}
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"lang": set.Lang, "available": true, "models": set})
}

// EnsureModels downloads whatever is missing for :lang.
func (h *Handler) EnsureModels(c *fiber.Ctx) error {
	lang := c.Params("lang")
	angle := c.QueryBool("angle_cls", true)

	var set models.Set
	err := h.exclusive(func() (err error) {
		set, err = h.prov.Ensure(c.UserContext(), lang, angle)
		return err
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"lang": set.Lang, "available": true, "models": set})
}

// CreateJob recognizes the uploaded image and returns the spans together
// with links to the annotated image and JSON document.
func (h *Handler) CreateJob(c *fiber.Ctx) error {
	rid, _ := c.Locals(middleware.ReqIDKey).(string)
	jobID := uuid.New().String()
	log := telemetry.L().With().Str("req_id", rid).Str("job_id", jobID).Logger()

	fh, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "image required"})
	}
	lang := c.FormValue("lang", h.cfg.OCRLang)
	angle := h.cfg.OCRUseAngleCls
	if v := c.FormValue("angle_cls"); v != "" {
		angle = v == "true" || v == "1"
	}

	tmp := filepath.Join(os.TempDir(), jobID+strings.ToLower(filepath.Ext(fh.Filename)))
	if err := c.SaveFile(fh, tmp); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "save fail"})
	}
	defer os.Remove(tmp)

	saved, err := img.SaveUpload(tmp, h.UploadDir(), 0)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unreadable image"})
	}
	log.Info().Str("hash", saved.Hash).Str("lang", lang).Msg("job_created")
	ws.BroadcastJobCreated(jobID, lang)

	opts := runner.Options{
		InputPath: saved.Path,
		OutputDir: filepath.Join(h.OutputDir(), jobID),
		OCR:       h.cfg.OCRConfig(lang, angle),
	}
	var rep runner.Report
	err = h.exclusive(func() (err error) {
		rep, err = runner.Run(c.UserContext(), opts, runner.Deps{
			Models:    h.prov,
			NewEngine: h.newEngine,
			Out:       io.Discard,
		})
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("job_failed")
		ws.BroadcastJobError(jobID, err)
		return errorJSON(c, err)
	}

	docs := make([]any, 0, len(rep.Results))
	spans := 0
	for _, r := range rep.Results {
		docs = append(docs, output.SpansEncoder{}.Encode(r))
		spans += len(r.Spans)
	}
	files := make([]runner.Files, 0, len(rep.Files))
	for _, f := range rep.Files {
		files = append(files, runner.Files{Image: h.fileURL(f.Image), JSON: h.fileURL(f.JSON)})
	}
	ws.BroadcastJobDone(jobID, spans, rep.Elapsed.Milliseconds())
	log.Info().Int("spans", spans).Dur("elapsed", rep.Elapsed).Msg("job_done")

	return c.JSON(fiber.Map{
		"id":         jobID,
		"lang":       lang,
		"elapsed_ms": rep.Elapsed.Milliseconds(),
		"results":    docs,
		"files":      files,
	})
}

// exclusive runs fn holding the job lock; the lock is released even if fn
// panics.
func (h *Handler) exclusive(fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn()
}

// fileURL maps a path under the output dir to its static route.
func (h *Handler) fileURL(path string) string {
	rel, err := filepath.Rel(h.OutputDir(), path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return "/output/" + strings.Join(parts, "/")
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(StatusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

// StatusFor maps pipeline and provisioning failures to HTTP status codes.
func StatusFor(err error) int {
	var (
		cerr *models.ConfigurationError
		derr *models.DownloadError
		nerr *models.ModelNotAvailableError
		ierr *ocr.InputNotFoundError
	)
	switch {
	case errors.As(err, &cerr):
		return fiber.StatusBadRequest
	case errors.As(err, &derr):
		return fiber.StatusBadGateway
	case errors.As(err, &nerr):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &ierr):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
