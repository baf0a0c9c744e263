package core

import "math"

type (
	// Point is a position in whichever coordinate space the caller is working in.
	Point struct {
		X float64 `json:"x" yaml:"x" toml:"x" msgpack:"x"`
		Y float64 `json:"y" yaml:"y" toml:"y" msgpack:"y"`
	}

	Size struct {
		Width  float64 `json:"width" yaml:"width" toml:"width"`
		Height float64 `json:"height" yaml:"height" toml:"height"`
	}

	// Rect is an axis-aligned rectangle anchored at its top-left corner.
	Rect struct {
		X      float64 `json:"x" yaml:"x" toml:"x"`
		Y      float64 `json:"y" yaml:"y" toml:"y"`
		Width  float64 `json:"width" yaml:"width" toml:"width"`
		Height float64 `json:"height" yaml:"height" toml:"height"`
	}
)

func (r Rect) Area() float64 {
	return r.Width * r.Height
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0 || math.IsNaN(r.Width) || math.IsNaN(r.Height)
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Inset shrinks the rectangle by d on every side. A negative d grows it.
func (r Rect) Inset(d float64) Rect {
	return Rect{X: r.X + d, Y: r.Y + d, Width: r.Width - 2*d, Height: r.Height - 2*d}
}

// Near reports whether every edge of r is within tol of the matching edge of o.
func (r Rect) Near(o Rect, tol float64) bool {
	return math.Abs(r.X-o.X) <= tol &&
		math.Abs(r.Y-o.Y) <= tol &&
		math.Abs(r.Right()-o.Right()) <= tol &&
		math.Abs(r.Bottom()-o.Bottom()) <= tol
}
