package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"

	"labtree/internal/record"
)

// Image renders raster previews. Photos (waves) are stored as JPEG,
// micrographs (contours) as PNG.
type Image struct {
	kind    Kind
	maxSize int
}

// NewImage creates an image extractor producing previews of the given kind,
// downscaled so that the longest side is at most maxSize pixels.
func NewImage(kind Kind, maxSize int) *Image {
	return &Image{kind: kind, maxSize: maxSize}
}

// Extract decodes the image and returns a downscaled preview.
func (e *Image) Extract(ctx context.Context, absPath string, doc *record.Record) (Result, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := src.Bounds()
	preview := downscale(src, e.maxSize)

	var buf bytes.Buffer
	if e.kind == KindContours {
		err = png.Encode(&buf, preview)
	} else {
		err = jpeg.Encode(&buf, preview, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode preview: %w", err)
	}

	measurementType := "photo"
	if e.kind == KindContours {
		measurementType = "micrograph"
	}
	return Result{
		Preview: buf.Bytes(),
		Kind:    e.kind,
		Meta: Meta{
			MeasurementType: []string{measurementType},
			MetaVendor: map[string]any{
				"format": format,
				"width":  bounds.Dx(),
				"height": bounds.Dy(),
			},
		},
	}, nil
}

// downscale resizes src with nearest-neighbour sampling so that its longest
// side is at most maxSize. Smaller images are returned unchanged.
func downscale(src image.Image, maxSize int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if maxSize <= 0 || longest <= maxSize {
		return src
	}
	nw := max(1, w*maxSize/longest)
	nh := max(1, h*maxSize/longest)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		sy := b.Min.Y + y*h/nh
		for x := 0; x < nw; x++ {
			sx := b.Min.X + x*w/nw
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
