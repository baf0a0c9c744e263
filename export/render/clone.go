package render

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"printdesign-server/canvas"
)

// cloneObject tries the engine's clone first and a serialisation round trip
// second.
func (r *Renderer) cloneObject(o *canvas.Object) (*canvas.Object, error) {
	if o == nil {
		return nil, errors.New("nil object")
	}
	c, engineErr := r.engine.Clone(o)
	if engineErr == nil && c != nil {
		return c, nil
	}
	c, err := structuralClone(o)
	if err != nil {
		return nil, fmt.Errorf("engine clone: %v; structural clone: %w", engineErr, err)
	}
	return c, nil
}

// structuralClone copies o through msgpack. Decoded bitmaps of top-level
// images are carried over so they are not decoded again.
func structuralClone(o *canvas.Object) (*canvas.Object, error) {
	if o.HasCycle() {
		return nil, canvas.ErrCloneCycle
	}
	b, err := msgpack.Marshal(o)
	if err != nil {
		return nil, err
	}
	var c canvas.Object
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if o.IsRaster() {
		if bm, err := o.Bitmap(); err == nil {
			c.SetBitmap(bm)
		}
	}
	return &c, nil
}
