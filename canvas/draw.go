package canvas

import (
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"
)

const defaultFontSize = 16

var regularFont = sync.OnceValues(func() (*text.FontSource, error) {
	return text.NewFontSource(goregular.TTF)
})

// painter draws objects onto a gg context. fontScale tracks the accumulated
// vertical scale so text, which gg draws in device space, keeps its size.
type painter struct {
	dc *gg.Context
}

func (p *painter) draw(o *Object, fontScale float64) error {
	if o == nil || !o.Visible {
		return nil
	}
	sx, sy := o.Scale()

	p.dc.Push()
	defer p.dc.Pop()

	p.dc.Translate(o.Left, o.Top)
	if o.Angle != 0 {
		p.dc.Rotate(o.Angle * math.Pi / 180)
	}
	p.dc.Scale(sx, sy)

	opacity := o.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}

	switch o.Kind {
	case KindRect:
		p.dc.DrawRectangle(0, 0, o.Width, o.Height)
		return p.paint(o, opacity)
	case KindShape:
		if len(o.Points) > 1 {
			p.dc.MoveTo(o.Points[0].X, o.Points[0].Y)
			for _, pt := range o.Points[1:] {
				p.dc.LineTo(pt.X, pt.Y)
			}
			p.dc.ClosePath()
		} else {
			p.dc.DrawEllipse(o.Width/2, o.Height/2, o.Width/2, o.Height/2)
		}
		return p.paint(o, opacity)
	case KindText:
		return p.text(o, fontScale*math.Abs(sy), opacity)
	case KindImage:
		return p.image(o, opacity)
	case KindGroup:
		for _, child := range o.Objects {
			if err := p.draw(child, fontScale*math.Abs(sy)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported object kind %q", o.Kind)
	}
}

// paint fills then strokes the current path. The path is kept between the two.
func (p *painter) paint(o *Object, opacity float64) error {
	fill, hasFill := ParseColor(o.Fill)
	stroke, hasStroke := ParseColor(o.Stroke)
	hasStroke = hasStroke && o.StrokeWidth > 0

	if hasFill {
		p.dc.SetRGBA(fill.R, fill.G, fill.B, fill.A*opacity)
		var err error
		if hasStroke {
			err = p.dc.FillPreserve()
		} else {
			err = p.dc.Fill()
		}
		if err != nil {
			return fmt.Errorf("fill %q: %w", o.ID, err)
		}
	}
	if hasStroke {
		p.dc.SetRGBA(stroke.R, stroke.G, stroke.B, stroke.A*opacity)
		p.dc.SetLineWidth(o.StrokeWidth)
		if err := p.dc.Stroke(); err != nil {
			return fmt.Errorf("stroke %q: %w", o.ID, err)
		}
	}
	if !hasFill && !hasStroke {
		p.dc.ClearPath()
	}
	return nil
}

// text draws the string with its top-left corner at the object origin.
// Rotation is not applied to glyphs.
func (p *painter) text(o *Object, scale, opacity float64) error {
	if o.Text == "" {
		return nil
	}
	source, err := regularFont()
	if err != nil {
		return fmt.Errorf("load font: %w", err)
	}
	size := o.FontSize
	if size <= 0 {
		size = defaultFontSize
	}
	fill, ok := ParseColor(o.Fill)
	if !ok {
		fill = gg.RGB(0, 0, 0)
	}

	x, y := p.dc.TransformPoint(0, 0)
	p.dc.SetFont(source.Face(size * scale))
	p.dc.SetRGBA(fill.R, fill.G, fill.B, fill.A*opacity)
	p.dc.DrawStringAnchored(o.Text, x, y, 0, 1)
	return nil
}

func (p *painter) image(o *Object, opacity float64) error {
	bm, err := o.Bitmap()
	if err != nil {
		return err
	}
	w, h := o.Width, o.Height
	if w <= 0 || h <= 0 {
		b := bm.Bounds()
		w, h = float64(b.Dx()), float64(b.Dy())
	}
	p.dc.DrawImageEx(gg.ImageBufFromImage(bm), gg.DrawImageOptions{
		DstWidth:      w,
		DstHeight:     h,
		Interpolation: gg.InterpBilinear,
		Opacity:       opacity,
		BlendMode:     gg.BlendNormal,
	})
	return nil
}
