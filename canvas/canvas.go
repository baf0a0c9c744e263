package canvas

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"

	"github.com/gogpu/gg"
	"github.com/sirupsen/logrus"
)

// maxPixels caps any raster the engine allocates (about 16k x 16k).
const maxPixels = 268_435_456

var ErrRasterTooLarge = errors.New("raster exceeds pixel limit")

// Canvas holds the objects of one view and rasterises them. Image sources
// are decoded in the background after construction; Ready reports when that
// has finished.
type Canvas struct {
	width, height int

	objects []*Object

	ready    chan struct{}
	surfaces atomic.Int64
	log      logrus.FieldLogger
}

type Option func(*Canvas)

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Canvas) {
		c.log = log
	}
}

// New creates a canvas of the given pixel size holding objects in z-order.
func New(width, height int, objects []*Object, opts ...Option) *Canvas {
	c := &Canvas{
		width:   width,
		height:  height,
		objects: append([]*Object(nil), objects...),
		ready:   make(chan struct{}),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.prepare(c.Objects())
	return c
}

// FromView builds a canvas from a saved scene view.
func FromView(v *View, opts ...Option) *Canvas {
	return New(int(math.Round(v.Width)), int(math.Round(v.Height)), v.Objects, opts...)
}

func (c *Canvas) prepare(objects []*Object) {
	defer close(c.ready)
	var walk func(list []*Object, depth int)
	walk = func(list []*Object, depth int) {
		if depth > maxCloneDepth*4 {
			return
		}
		for _, o := range list {
			if o == nil {
				continue
			}
			if o.Kind == KindImage {
				if _, err := o.Bitmap(); err != nil {
					c.log.WithFields(logrus.Fields{
						"object_id": o.ID,
						"error":     err,
					}).Warn("Failed to decode image source")
				}
			}
			walk(o.Objects, depth+1)
		}
	}
	walk(objects, 0)
}

func (c *Canvas) Size() (int, int) {
	return c.width, c.height
}

// Objects returns the top-level objects in z-order. The slice is a copy; the
// objects are the live ones.
func (c *Canvas) Objects() []*Object {
	return append([]*Object(nil), c.objects...)
}

// Marked returns the top-level objects carrying marker, in z-order.
func (c *Canvas) Marked(marker Marker) []*Object {
	var found []*Object
	for _, o := range c.Objects() {
		if o != nil && o.Marker == marker {
			found = append(found, o)
		}
	}
	return found
}

// Ready blocks until background image decoding has finished.
func (c *Canvas) Ready(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rasterize draws objects over a transparent canvas scaled by scale. The live
// canvas is not touched; objects need not belong to it.
func (c *Canvas) Rasterize(scale float64, objects []*Object) (image.Image, error) {
	w := int(math.Round(float64(c.width) * scale))
	h := int(math.Round(float64(c.height) * scale))
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rectangle{}), nil
	}
	if w*h > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrRasterTooLarge, w, h)
	}

	dc := gg.NewContext(w, h)
	defer func() { _ = dc.Close() }()

	dc.Scale(scale, scale)
	p := painter{dc: dc}
	for _, o := range objects {
		if err := p.draw(o, scale); err != nil {
			return nil, err
		}
	}
	return dc.Image(), nil
}

// Clone deep-copies o. Groups nested deeper than the fast path allows and
// groups that contain themselves are rejected.
func (c *Canvas) Clone(o *Object) (*Object, error) {
	if o == nil {
		return nil, errors.New("clone of nil object")
	}
	return o.clone(0, map[*Object]bool{})
}

// LiveSurfaces is the number of surfaces created and not yet disposed.
func (c *Canvas) LiveSurfaces() int {
	return int(c.surfaces.Load())
}
