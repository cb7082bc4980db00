// Package compress downscales and re-encodes invoice photos before upload.
// A 2K longest edge keeps OCR accuracy while cutting bandwidth drastically.
package compress

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/docling/docling-agent/internal/domain"
	_ "golang.org/x/image/webp"
)

// Compressor re-encodes images to bounded-size JPEG. Non-image files pass
// through untouched.
type Compressor struct {
	MaxDimension int // longest edge after downscale
	JPEGQuality  int // 1-100
}

// New creates a Compressor with the given bounds. Zero values fall back to
// 2000 px and quality 85.
func New(maxDimension, jpegQuality int) *Compressor {
	if maxDimension <= 0 {
		maxDimension = 2000
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	return &Compressor{MaxDimension: maxDimension, JPEGQuality: jpegQuality}
}

// Compress returns a bounded JPEG rendition of an image file, or the input
// unchanged when it is not an image.
// Parameters:
//   - file: in-memory file to compress.
// Returns:
//   - domain.File: compressed rendition (or the original for non-images).
//   - error: non-nil if the image cannot be decoded or re-encoded.
func (c *Compressor) Compress(file domain.File) (domain.File, error) {
	if !file.IsImage() {
		return file, nil
	}

	img, err := imaging.Decode(bytes.NewReader(file.Data), imaging.AutoOrientation(true))
	if err != nil {
		return domain.File{}, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > c.MaxDimension || bounds.Dy() > c.MaxDimension {
		img = imaging.Fit(img, c.MaxDimension, c.MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.JPEGQuality)); err != nil {
		return domain.File{}, fmt.Errorf("failed to encode image: %w", err)
	}

	return domain.File{
		Name: jpegName(file.Name),
		Size: int64(buf.Len()),
		MIME: "image/jpeg",
		Data: buf.Bytes(),
	}, nil
}

// jpegName swaps the extension for .jpg, keeping the base name.
func jpegName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".jpg"
}

// Dimensions decodes only the image header and returns width and height.
func Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
