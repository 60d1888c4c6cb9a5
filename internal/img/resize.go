package img

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

type SaveResult struct {
	Path          string
	Hash          string
	Width, Height int
}

// SaveUpload normalizes an uploaded image for OCR and stores it under
// dstDir as <sha256><ext>, so identical uploads share one file.
func SaveUpload(srcPath, dstDir string, maxW int) (SaveResult, error) {
	out, err := PrepareForOCR(srcPath, maxW, false)
	if err != nil {
		return SaveResult{}, err
	}
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return SaveResult{}, err
	}

	ext := strings.ToLower(filepath.Ext(srcPath))
	if _, err := imaging.FormatFromExtension(ext); err != nil {
		ext = ".png"
	}
	tmp, err := os.CreateTemp(dstDir, "upload-*"+ext)
	if err != nil {
		return SaveResult{}, err
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := imaging.Save(out, tmp.Name(), imaging.JPEGQuality(95)); err != nil {
		return SaveResult{}, err
	}

	b, err := os.ReadFile(tmp.Name())
	if err != nil {
		return SaveResult{}, err
	}
	h := sha256.Sum256(b)
	hash := hex.EncodeToString(h[:])
	dst := filepath.Join(dstDir, hash+ext)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return SaveResult{}, err
	}
	return SaveResult{Path: dst, Hash: hash, Width: out.Bounds().Dx(), Height: out.Bounds().Dy()}, nil
}
