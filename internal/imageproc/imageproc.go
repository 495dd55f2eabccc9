// Package imageproc prepares images for a CLIP image encoder: decode,
// convert to RGB, resize the shortest side and center-crop to a square.
package imageproc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"io"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/kailas-cloud/clipsearch/internal/domain"
)

// CLIPSize is the input resolution of ViT-B/32.
const CLIPSize = 224

const jpegQuality = 95

// Preprocessor resizes and crops images to a fixed square size.
type Preprocessor struct {
	size int
}

// New creates a preprocessor for size x size outputs. size <= 0 means CLIPSize.
func New(size int) *Preprocessor {
	if size <= 0 {
		size = CLIPSize
	}
	return &Preprocessor{size: size}
}

// Size returns the output edge length.
func (p *Preprocessor) Size() int { return p.size }

// File reads and preprocesses an image file, returning JPEG bytes.
// A missing file yields domain.ErrImageNotFound.
func (p *Preprocessor) File(name string) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrImageNotFound, name)
		}
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	return p.Reader(f)
}

// Reader decodes and preprocesses an image stream, returning JPEG bytes.
// Undecodable input yields domain.ErrInvalidImage.
func (p *Preprocessor) Reader(r io.Reader) ([]byte, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidImage, err)
	}

	dst := p.Transform(src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Transform scales src so its shortest side equals the target size
// (bicubic), then takes the centered square crop. Output is always RGBA
// with opaque alpha, which is plain RGB once encoded.
func (p *Preprocessor) Transform(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	}

	var sw, sh int
	if w <= h {
		sw = p.size
		sh = max(p.size, (h*p.size+w/2)/w)
	} else {
		sh = p.size
		sw = max(p.size, (w*p.size+h/2)/h)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Src, nil)

	x0 := (sw - p.size) / 2
	y0 := (sh - p.size) / 2
	out := image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	draw.Draw(out, out.Bounds(), scaled, image.Pt(x0, y0), draw.Src)
	return out
}

// DataURI wraps JPEG bytes as a base64 data URI.
func DataURI(jpegBytes []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
}

// Base64 encodes bytes without a data URI prefix.
func Base64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
