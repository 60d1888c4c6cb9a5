package middleware

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/lemme_ocr/internal/config"
)

// FileUploadValidator rejects multipart uploads whose files are too large,
// have an extension outside the allow list, or whose content does not match
// the extension.
func FileUploadValidator(cfg *config.Config) fiber.Handler {
	extMap := make(map[string]struct{})
	for _, e := range cfg.AllowedFileExt {
		extMap[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	maxSize := int64(cfg.AllowedMaxFileSize) * 1024 * 1024

	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid multipart form",
			})
		}

		for _, files := range form.File {
			for _, file := range files {
				if ferr := validateFile(file, extMap, maxSize); ferr != nil {
					return c.Status(ferr.Code).JSON(fiber.Map{
						"error": ferr.Message,
						"file":  file.Filename,
					})
				}
			}
		}

		return c.Next()
	}
}

func validateFile(file *multipart.FileHeader, extMap map[string]struct{}, maxSize int64) *fiber.Error {
	if file.Size > maxSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "file too large")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := extMap[ext]; !ok {
		return fiber.NewError(fiber.StatusBadRequest, "invalid file type")
	}

	f, err := file.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot open file")
	}
	defer f.Close()

	head := make([]byte, 512) // DetectContentType reads at most 512 bytes
	n, _ := f.Read(head)
	head = head[:n]

	if !isValidMagic(ext, http.DetectContentType(head), head) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid file content")
	}
	return nil
}

var (
	magicTIFFLE = []byte{'I', 'I', 0x2A, 0x00}
	magicTIFFBE = []byte{'M', 'M', 0x00, 0x2A}
)

// verify magic numbers for the image formats the decoder understands
func isValidMagic(ext, mimeType string, head []byte) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return strings.HasPrefix(mimeType, "image/jpeg") &&
			len(head) > 2 && head[0] == 0xFF && head[1] == 0xD8
	case ".png":
		return strings.HasPrefix(mimeType, "image/png") &&
			bytes.HasPrefix(head, []byte{0x89, 0x50, 0x4E, 0x47})
	case ".gif":
		return strings.HasPrefix(mimeType, "image/gif")
	case ".bmp":
		return strings.HasPrefix(mimeType, "image/bmp") && bytes.HasPrefix(head, []byte("BM"))
	case ".tif", ".tiff":
		return bytes.HasPrefix(head, magicTIFFLE) || bytes.HasPrefix(head, magicTIFFBE)
	default:
		return false
	}
}
