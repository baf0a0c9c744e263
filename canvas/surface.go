package canvas

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gg"
)

var ErrSurfaceDisposed = errors.New("surface already disposed")

// Surface is an isolated drawing target sized in output pixels. Objects added
// to it are drawn without any further scaling.
type Surface interface {
	Add(o *Object)
	Rasterize() (image.Image, error)
	Dispose() error
}

type offscreen struct {
	owner   *Canvas
	dc      *gg.Context
	objects []*Object
}

// NewSurface allocates an offscreen surface. Callers must Dispose it.
func (c *Canvas) NewSurface(width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface size %dx%d is empty", width, height)
	}
	if width*height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrRasterTooLarge, width, height)
	}
	c.surfaces.Add(1)
	return &offscreen{owner: c, dc: gg.NewContext(width, height)}, nil
}

func (s *offscreen) Add(o *Object) {
	s.objects = append(s.objects, o)
}

func (s *offscreen) Rasterize() (image.Image, error) {
	if s.dc == nil {
		return nil, ErrSurfaceDisposed
	}
	p := painter{dc: s.dc}
	for _, o := range s.objects {
		if err := p.draw(o, 1); err != nil {
			return nil, err
		}
	}
	return s.dc.Image(), nil
}

func (s *offscreen) Dispose() error {
	if s.dc == nil {
		return nil
	}
	err := s.dc.Close()
	s.dc = nil
	s.objects = nil
	s.owner.surfaces.Add(-1)
	return err
}
