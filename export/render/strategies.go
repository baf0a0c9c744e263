package render

import (
	"fmt"
	"image"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"printdesign-server/canvas"
	"printdesign-server/core"
	"printdesign-server/export/geometry"
)

// clipAndScale lets the engine rasterise the objects over the whole canvas at
// the multiplier and crops the zone out of the result.
func (r *Renderer) clipAndScale(objects []*canvas.Object, zone core.PrintZone, m float64, _ Options) (outcome, error) {
	crop, err := outputRect(zone, m)
	if err != nil {
		return outcome{}, err
	}
	full, err := r.engine.Rasterize(m, objects)
	if err != nil {
		return outcome{}, fmt.Errorf("rasterize canvas: %w", err)
	}
	if full == nil || full.Bounds().Empty() {
		return outcome{}, fmt.Errorf("%w: engine returned an empty raster", ErrDegenerateRaster)
	}

	dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(dst, dst.Bounds(), full, crop.Min.Add(full.Bounds().Min), draw.Src)
	return outcome{img: dst, count: len(objects)}, nil
}

// offscreen clones every object onto a surface the size of the output,
// shifted into zone-relative space and scaled by the multiplier.
func (r *Renderer) offscreen(objects []*canvas.Object, zone core.PrintZone, m float64, opts Options) (outcome, error) {
	out, err := outputRect(zone, m)
	if err != nil {
		return outcome{}, err
	}
	surface, err := r.engine.NewSurface(out.Dx(), out.Dy())
	if err != nil {
		return outcome{}, fmt.Errorf("create surface: %w", err)
	}
	defer func() {
		if err := surface.Dispose(); err != nil {
			r.log.WithError(err).Warn("Failed to dispose offscreen surface")
		}
	}()

	var warnings []core.Warning
	count := 0
	for i, o := range objects {
		if o == nil {
			continue
		}
		c, err := r.cloneObject(o)
		if err != nil {
			if opts.StrictClones {
				return outcome{}, fmt.Errorf("%w: object %d: %v", ErrCloneFailure, i, err)
			}
			r.log.WithFields(logrus.Fields{
				"object_id": o.ID,
				"index":     i,
				"error":     err,
			}).Warn("Skipping object that could not be cloned")
			warnings = append(warnings, core.Warning{
				Code:    core.CodeCloneFailure,
				Message: fmt.Sprintf("object %d (%s) skipped: %v", i, describe(o), err),
			})
			continue
		}

		sx, sy := c.Scale()
		pos := geometry.CanvasToOutput(core.Point{X: c.Left, Y: c.Top}, zone.Rect, m)
		c.Left, c.Top = pos.X, pos.Y
		c.ScaleX = sx * m
		c.ScaleY = sy * m
		surface.Add(c)
		count++
	}

	img, err := surface.Rasterize()
	if err != nil {
		return outcome{}, fmt.Errorf("rasterize surface: %w", err)
	}
	return outcome{img: img, count: count, warnings: warnings}, nil
}

// composite draws only raster objects with bilinear scaling onto a blank
// image. Vector content is dropped.
func (r *Renderer) composite(objects []*canvas.Object, zone core.PrintZone, m float64, _ Options) (outcome, error) {
	out, err := outputRect(zone, m)
	if err != nil {
		return outcome{}, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, out.Dx(), out.Dy()))

	var warnings []core.Warning
	count := 0
	for i, o := range objects {
		if o == nil {
			continue
		}
		if !o.IsRaster() {
			warnings = append(warnings, core.Warning{
				Code:    core.CodeUnsupportedObject,
				Message: fmt.Sprintf("object %d (%s) dropped: only images survive compositing", i, describe(o)),
			})
			continue
		}
		bm, err := o.Bitmap()
		if err != nil {
			warnings = append(warnings, core.Warning{
				Code:    core.CodeUnsupportedObject,
				Message: fmt.Sprintf("object %d (%s) dropped: %v", i, describe(o), err),
			})
			continue
		}
		if o.Angle != 0 {
			warnings = append(warnings, core.Warning{
				Code:    core.CodeUnsupportedObject,
				Message: fmt.Sprintf("object %d (%s) drawn without its rotation", i, describe(o)),
			})
		}

		w, h := o.ScaledSize()
		if o.Width <= 0 || o.Height <= 0 {
			sx, sy := o.Scale()
			w, h = float64(bm.Bounds().Dx())*sx, float64(bm.Bounds().Dy())*sy
		}
		pos := geometry.CanvasToOutput(core.Point{X: o.Left, Y: o.Top}, zone.Rect, m)
		x0, y0 := math.Round(pos.X), math.Round(pos.Y)
		rect := image.Rect(int(x0), int(y0), int(x0+math.Round(w*m)), int(y0+math.Round(h*m))).Canon()
		if rect.Empty() {
			continue
		}
		draw.BiLinear.Scale(dst, rect, bm, bm.Bounds(), draw.Over, nil)
		count++
	}
	return outcome{img: dst, count: count, warnings: warnings}, nil
}

func describe(o *canvas.Object) string {
	if o == nil {
		return "nil"
	}
	if o.ID != "" {
		return fmt.Sprintf("%s %s", o.Kind, o.ID)
	}
	return string(o.Kind)
}
