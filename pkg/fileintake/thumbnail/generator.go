// Package thumbnail derives small PNG previews from uploaded documents.
//
// Raster images are decoded and downscaled directly. PDFs are handled with
// pdfcpu: the file is optimized under relaxed validation, then the embedded
// images of the first page are extracted and the largest one becomes the
// preview source. PDFs whose first page carries no raster content cannot be
// previewed without a full renderer.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/image/draw"

	"github.com/resumekit/fileintake/pkg/fileintake"
)

// Generator implements fileintake.Thumbnailer.
type Generator struct{}

var _ fileintake.Thumbnailer = (*Generator)(nil)

// New creates a thumbnail generator.
func New() *Generator {
	return &Generator{}
}

// Supports reports whether Generate can produce a preview for the media type.
func (g *Generator) Supports(mimeType string) bool {
	switch normalizeMime(mimeType) {
	case "image/png", "image/jpeg", "image/gif", "application/pdf":
		return true
	}
	return false
}

// Generate produces PNG bytes bounded by dims.
func (g *Generator) Generate(ctx context.Context, src []byte, mimeType string, dims fileintake.Dimensions) ([]byte, error) {
	var img image.Image
	var err error

	switch normalizeMime(mimeType) {
	case "image/png", "image/jpeg", "image/gif":
		img, _, err = image.Decode(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
	case "application/pdf":
		img, err = firstPageImage(ctx, src)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", fileintake.ErrUnsupportedMedia, mimeType)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scaled := downscale(img, dims)

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// firstPageImage extracts the largest embedded image from page 1 of a PDF.
func firstPageImage(ctx context.Context, src []byte) (image.Image, error) {
	workDir, err := os.MkdirTemp("", "thumbnail-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	source := filepath.Join(workDir, "source.pdf")
	if err := os.WriteFile(source, src, 0600); err != nil {
		return nil, fmt.Errorf("write work file: %w", err)
	}

	// Relaxed validation keeps slightly malformed resume exports working.
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	optimized := filepath.Join(workDir, "optimized.pdf")
	if err := api.OptimizeFile(source, optimized, cfg); err != nil {
		return nil, fmt.Errorf("optimize pdf: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: empty pdf", fileintake.ErrUnsupportedMedia)
	}

	imagesDir := filepath.Join(workDir, "images")
	if err := os.MkdirAll(imagesDir, 0700); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	if err := api.ExtractImagesFile(optimized, imagesDir, []string{"1"}, cfg); err != nil {
		return nil, fmt.Errorf("extract page images: %w", err)
	}

	img, err := largestImage(imagesDir)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func largestImage(dir string) (image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read images dir: %w", err)
	}

	var best image.Image
	var bestArea int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			continue
		}
		bounds := img.Bounds()
		if area := bounds.Dx() * bounds.Dy(); area > bestArea {
			best = img
			bestArea = area
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no renderable content on first page", fileintake.ErrUnsupportedMedia)
	}
	return best, nil
}

// downscale fits img inside dims preserving aspect ratio. Images already
// inside the bounds pass through unscaled.
func downscale(img image.Image, dims fileintake.Dimensions) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= dims.Width && srcH <= dims.Height {
		return img
	}

	ratioW := float64(dims.Width) / float64(srcW)
	ratioH := float64(dims.Height) / float64(srcH)
	ratio := ratioW
	if ratioH < ratio {
		ratio = ratioH
	}

	dstW := int(float64(srcW) * ratio)
	dstH := int(float64(srcH) * ratio)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "image/jpg" {
		return "image/jpeg"
	}
	return mimeType
}
