// Package geometry converts between the coordinate spaces used by the export
// pipeline: canvas pixels, print-zone relative pixels, physical units and
// output pixels. Every function is pure.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"printdesign-server/core"
)

// ErrInvalidMultiplier is returned for multipliers that are not finite and positive.
var ErrInvalidMultiplier = errors.New("invalid multiplier")

// Physical is a zone-relative position expressed in millimetres and inches.
type Physical struct {
	MM   core.Point `json:"mm"`
	Inch core.Point `json:"inch"`
}

// CanvasToZoneRelative moves p so that the zone's top-left corner is the origin.
func CanvasToZoneRelative(p core.Point, zone core.Rect) core.Point {
	return core.Point{X: p.X - zone.X, Y: p.Y - zone.Y}
}

// ZoneRelativeToCanvas is the inverse of CanvasToZoneRelative.
func ZoneRelativeToCanvas(p core.Point, zone core.Rect) core.Point {
	return core.Point{X: p.X + zone.X, Y: p.Y + zone.Y}
}

// ZoneRelativeToPhysical converts zone-relative pixels at dpi to physical
// units. A non-positive dpi falls back to the zone's DPI.
func ZoneRelativeToPhysical(p core.Point, zone core.PrintZone, dpi float64) Physical {
	dpi = pickDPI(dpi, zone)
	inch := core.Point{X: p.X / dpi, Y: p.Y / dpi}
	return Physical{
		MM:   core.Point{X: inch.X * core.MillimetresPerInch, Y: inch.Y * core.MillimetresPerInch},
		Inch: inch,
	}
}

// PhysicalToZoneRelative converts millimetres back to zone-relative pixels at dpi.
func PhysicalToZoneRelative(mm core.Point, zone core.PrintZone, dpi float64) core.Point {
	dpi = pickDPI(dpi, zone)
	return core.Point{
		X: mm.X / core.MillimetresPerInch * dpi,
		Y: mm.Y / core.MillimetresPerInch * dpi,
	}
}

func pickDPI(dpi float64, zone core.PrintZone) float64 {
	if dpi > 0 {
		return dpi
	}
	if zone.DPI > 0 {
		return zone.DPI
	}
	return core.DefaultPrintDPI
}

// ScaleForOutput returns the pixel dimensions of size rendered at multiplier.
// Values are rounded half away from zero so a 700px zone at 3.125 yields 2188.
func ScaleForOutput(size core.Size, multiplier float64) (width, height int) {
	return int(math.Round(size.Width * multiplier)), int(math.Round(size.Height * multiplier))
}

// ValidateMultiplier rejects zero, negative, NaN and infinite multipliers.
func ValidateMultiplier(m float64) error {
	if math.IsNaN(m) || math.IsInf(m, 0) || m <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidMultiplier, m)
	}
	return nil
}

// MultiplierForDPI is the scale that turns a baseline-DPI canvas into target DPI.
// A non-positive baseline means the 96 DPI screen default.
func MultiplierForDPI(target, baseline float64) float64 {
	if baseline <= 0 {
		baseline = core.ScreenDPI
	}
	return target / baseline
}

// ObjectBounds returns the axis-aligned bounding box of a width×height box
// scaled by (scaleX, scaleY) and rotated angle degrees about its top-left
// corner at (left, top).
func ObjectBounds(left, top, width, height, scaleX, scaleY, angle float64) core.Rect {
	w, h := width*scaleX, height*scaleY
	if angle == 0 || math.Mod(angle, 360) == 0 {
		return normalize(core.Rect{X: left, Y: top, Width: w, Height: h})
	}

	sin, cos := math.Sincos(angle * math.Pi / 180)
	corners := [4]core.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x := left + c.X*cos - c.Y*sin
		y := top + c.X*sin + c.Y*cos
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return core.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// normalize flips negative extents produced by negative scales.
func normalize(r core.Rect) core.Rect {
	if r.Width < 0 {
		r.X, r.Width = r.X+r.Width, -r.Width
	}
	if r.Height < 0 {
		r.Y, r.Height = r.Y+r.Height, -r.Height
	}
	return r
}

// ScaleRect multiplies position and size by independent factors.
func ScaleRect(r core.Rect, sx, sy float64) core.Rect {
	return core.Rect{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

// CanvasToOutput places a canvas point in the raster of zone rendered at
// multiplier: zone-relative first, then scaled.
func CanvasToOutput(p core.Point, zone core.Rect, multiplier float64) core.Point {
	rel := CanvasToZoneRelative(p, zone)
	return core.Point{X: rel.X * multiplier, Y: rel.Y * multiplier}
}

// ExpandForBleed grows the zone by mm on every side. The canvas-pixel density
// comes from the zone's declared physical size when known and from the
// screen DPI otherwise.
func ExpandForBleed(zone core.PrintZone, mm float64) core.PrintZone {
	if mm <= 0 {
		return zone
	}
	canvasDPI := core.ScreenDPI
	if zone.Physical != nil && zone.Physical.Width > 0 && zone.Rect.Width > 0 {
		canvasDPI = zone.Rect.Width / zone.Physical.Width * core.MillimetresPerInch
	}
	bleed := PhysicalToZoneRelative(core.Point{X: mm, Y: mm}, zone, canvasDPI)
	zone.Rect = zone.Rect.Inset(-bleed.X)
	if zone.Physical != nil {
		phys := zone.Physical.Inset(-mm)
		zone.Physical = &phys
	}
	return zone
}
