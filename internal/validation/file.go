package validation

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// FileConstraints defines validation rules for uploaded blobs
type FileConstraints struct {
	AllowedMimeTypes  map[string]bool
	AllowedExtensions map[string]bool
	MaxSize           int64
}

// ImageConstraints accepts the formats Strava takes for activity photos.
var ImageConstraints = FileConstraints{
	AllowedMimeTypes: map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	},
	AllowedExtensions: map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
		".webp": true,
	},
	MaxSize: 10 << 20, // 10MB
}

// ValidateFile checks size, sniffed content type and extension. The content
// type is detected from the bytes, so a renamed file cannot pass.
func ValidateFile(filename string, data []byte, c FileConstraints) error {
	if len(data) == 0 {
		return errors.New("file is empty")
	}

	if int64(len(data)) > c.MaxSize {
		maxMB := c.MaxSize / (1 << 20)
		return fmt.Errorf("file too large: maximum size is %d MB", maxMB)
	}

	detectedType := http.DetectContentType(data)
	if !c.AllowedMimeTypes[detectedType] {
		return fmt.Errorf("invalid file type (detected: %s)", detectedType)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !c.AllowedExtensions[ext] {
		return fmt.Errorf("invalid file extension: %q", ext)
	}

	return nil
}
