package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"printdesign-server/canvas"
	"printdesign-server/core"
)

const defaultJPEGQuality = 0.92

func encode(img image.Image, opts Options) (core.ExportResult, error) {
	b := img.Bounds()
	if b.Empty() {
		return core.ExportResult{}, fmt.Errorf("%w: nothing to encode", ErrDegenerateRaster)
	}

	format := opts.Format
	if format == "" {
		format = core.FormatPNG
	}

	var buf bytes.Buffer
	switch format {
	case core.FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return core.ExportResult{}, fmt.Errorf("encode png: %w", err)
		}
	case core.FormatJPEG:
		q := opts.Quality
		if q <= 0 || q > 1 || math.IsNaN(q) {
			q = defaultJPEGQuality
		}
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: int(math.Round(q * 100))}); err != nil {
			return core.ExportResult{}, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return core.ExportResult{}, fmt.Errorf("unsupported format %q", format)
	}

	return core.ExportResult{
		DataURL:     canvas.EncodeDataURL(format.MIMEType(), buf.Bytes()),
		PixelWidth:  b.Dx(),
		PixelHeight: b.Dy(),
		ByteSize:    buf.Len(),
	}, nil
}

// flatten composites img over white since JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
