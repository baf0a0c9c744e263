package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printdesign-server/core"
)

func TestZoneRelativeRoundTrip(t *testing.T) {
	zone := core.Rect{X: 50, Y: 25, Width: 700, Height: 550}
	p := core.Point{X: 100, Y: 50}

	rel := CanvasToZoneRelative(p, zone)
	assert.Equal(t, core.Point{X: 50, Y: 25}, rel)
	assert.Equal(t, p, ZoneRelativeToCanvas(rel, zone))
}

func TestPhysicalRoundTrip(t *testing.T) {
	zone := core.PrintZone{DPI: 300}
	points := []core.Point{{X: 0, Y: 0}, {X: 300, Y: 600}, {X: 12.5, Y: 3.75}, {X: 2188, Y: 1719}}

	for _, p := range points {
		phys := ZoneRelativeToPhysical(p, zone, 0)
		back := PhysicalToZoneRelative(phys.MM, zone, 0)
		assert.InDelta(t, p.X, back.X, 1e-9)
		assert.InDelta(t, p.Y, back.Y, 1e-9)
	}

	phys := ZoneRelativeToPhysical(core.Point{X: 300, Y: 150}, zone, 0)
	assert.InDelta(t, 25.4, phys.MM.X, 1e-9)
	assert.InDelta(t, 1.0, phys.Inch.X, 1e-9)
	assert.InDelta(t, 0.5, phys.Inch.Y, 1e-9)
}

func TestPhysicalUsesExplicitDPI(t *testing.T) {
	zone := core.PrintZone{DPI: 300}
	phys := ZoneRelativeToPhysical(core.Point{X: 96}, zone, 96)
	assert.InDelta(t, 25.4, phys.MM.X, 1e-9)

	noDPI := ZoneRelativeToPhysical(core.Point{X: 300}, core.PrintZone{}, 0)
	assert.InDelta(t, 1.0, noDPI.Inch.X, 1e-9)
}

func TestScaleForOutput(t *testing.T) {
	w, h := ScaleForOutput(core.Size{Width: 700, Height: 550}, 3.125)
	assert.Equal(t, 2188, w)
	assert.Equal(t, 1719, h)

	w, h = ScaleForOutput(core.Size{Width: 1, Height: 1}, 0.5)
	assert.Equal(t, 1, w, "half rounds away from zero")
	assert.Equal(t, 1, h)
}

func TestScaleForOutputMonotonic(t *testing.T) {
	size := core.Size{Width: 333.3, Height: 17}
	prevW, prevH := 0, 0
	for m := 0.25; m <= 8; m += 0.25 {
		w, h := ScaleForOutput(size, m)
		assert.GreaterOrEqual(t, w, prevW)
		assert.GreaterOrEqual(t, h, prevH)
		prevW, prevH = w, h
	}
}

func TestValidateMultiplier(t *testing.T) {
	for _, m := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := ValidateMultiplier(m)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidMultiplier)
	}
	assert.NoError(t, ValidateMultiplier(3.125))
}

func TestMultiplierForDPI(t *testing.T) {
	assert.InDelta(t, 3.125, MultiplierForDPI(300, 96), 1e-12)
	assert.InDelta(t, 3.125, MultiplierForDPI(300, 0), 1e-12)
	assert.InDelta(t, 1.0, MultiplierForDPI(96, 96), 1e-12)
}

func TestObjectBounds(t *testing.T) {
	b := ObjectBounds(100, 50, 60, 15, 2, 2, 0)
	assert.Equal(t, core.Rect{X: 100, Y: 50, Width: 120, Height: 30}, b)

	b = ObjectBounds(0, 0, 10, 20, 1, 1, 90)
	assert.InDelta(t, -20, b.X, 1e-9)
	assert.InDelta(t, 0, b.Y, 1e-9)
	assert.InDelta(t, 20, b.Width, 1e-9)
	assert.InDelta(t, 10, b.Height, 1e-9)

	b = ObjectBounds(10, 10, 10, 10, -1, 1, 0)
	assert.Equal(t, core.Rect{X: 0, Y: 10, Width: 10, Height: 10}, b)
}

func TestBleed(t *testing.T) {
	zone := core.PrintZone{
		Rect:     core.Rect{X: 100, Y: 100, Width: 300, Height: 400},
		Physical: &core.Rect{Width: 300, Height: 400},
	}
	grown := ExpandForBleed(zone, 3)
	assertRectNear(t, core.Rect{X: 97, Y: 97, Width: 306, Height: 406}, grown.Rect)
	assert.Equal(t, core.Rect{X: -3, Y: -3, Width: 306, Height: 406}, *grown.Physical)
	assert.Equal(t, core.Rect{X: 100, Y: 100, Width: 300, Height: 400}, zone.Rect, "input untouched")

	assert.Equal(t, zone, ExpandForBleed(zone, 0))

	screen := ExpandForBleed(core.PrintZone{Rect: core.Rect{Width: 100, Height: 100}}, 25.4)
	assertRectNear(t, core.Rect{X: -96, Y: -96, Width: 292, Height: 292}, screen.Rect)
}

func TestCanvasToOutput(t *testing.T) {
	zone := core.Rect{X: 50, Y: 25, Width: 700, Height: 550}

	p := CanvasToOutput(core.Point{X: 100, Y: 50}, zone, 3.125)
	assert.InDelta(t, 156.25, p.X, 1e-9)
	assert.InDelta(t, 78.125, p.Y, 1e-9)

	origin := CanvasToOutput(core.Point{X: zone.X, Y: zone.Y}, zone, 3.125)
	assert.Equal(t, core.Point{}, origin)

	back := ZoneRelativeToCanvas(core.Point{X: p.X / 3.125, Y: p.Y / 3.125}, zone)
	assert.InDelta(t, 100, back.X, 1e-9)
	assert.InDelta(t, 50, back.Y, 1e-9)
}

func assertRectNear(t *testing.T, want, got core.Rect) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9)
	assert.InDelta(t, want.Y, got.Y, 1e-9)
	assert.InDelta(t, want.Width, got.Width, 1e-9)
	assert.InDelta(t, want.Height, got.Height, 1e-9)
}
