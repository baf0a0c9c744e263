// Package canvas is the in-process canvas engine: the scene object model, a
// gg-backed rasteriser and offscreen surfaces used by the export pipeline.
package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"printdesign-server/core"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindRect  Kind = "rect"
	KindShape Kind = "shape"
	KindGroup Kind = "group"
)

// Marker links an object to a system overlay drawn by the editor.
type Marker string

const (
	MarkerPrintZone Marker = "print-zone"
	MarkerSafeZone  Marker = "safe-zone"
)

// maxCloneDepth bounds group nesting for the fast clone path.
const maxCloneDepth = 8

var (
	ErrCloneCycle = errors.New("object graph contains a cycle")
	ErrCloneDepth = errors.New("group nesting too deep for fast clone")
)

// Object is one element of a scene. Position is the top-left corner in canvas
// pixels; Width and Height are pre-scale. Angle is in degrees about the
// top-left corner. Group children are positioned relative to the group origin.
type Object struct {
	ID                string       `json:"id,omitempty" msgpack:"id,omitempty"`
	Kind              Kind         `json:"type" msgpack:"type"`
	Left              float64      `json:"left" msgpack:"left"`
	Top               float64      `json:"top" msgpack:"top"`
	Width             float64      `json:"width" msgpack:"width"`
	Height            float64      `json:"height" msgpack:"height"`
	ScaleX            float64      `json:"scaleX" msgpack:"scaleX"`
	ScaleY            float64      `json:"scaleY" msgpack:"scaleY"`
	Angle             float64      `json:"angle,omitempty" msgpack:"angle,omitempty"`
	Opacity           float64      `json:"opacity" msgpack:"opacity"`
	Visible           bool         `json:"visible" msgpack:"visible"`
	Selectable        bool         `json:"selectable" msgpack:"selectable"`
	ExcludeFromExport bool         `json:"excludeFromExport,omitempty" msgpack:"excludeFromExport,omitempty"`
	IsBackground      bool         `json:"isBackground,omitempty" msgpack:"isBackground,omitempty"`
	Marker            Marker       `json:"marker,omitempty" msgpack:"marker,omitempty"`
	Fill              string       `json:"fill,omitempty" msgpack:"fill,omitempty"`
	Stroke            string       `json:"stroke,omitempty" msgpack:"stroke,omitempty"`
	StrokeWidth       float64      `json:"strokeWidth,omitempty" msgpack:"strokeWidth,omitempty"`
	Text              string       `json:"text,omitempty" msgpack:"text,omitempty"`
	FontSize          float64      `json:"fontSize,omitempty" msgpack:"fontSize,omitempty"`
	Src               string       `json:"src,omitempty" msgpack:"src,omitempty"`
	Points            []core.Point `json:"points,omitempty" msgpack:"points,omitempty"`
	Objects           []*Object    `json:"objects,omitempty" msgpack:"objects,omitempty"`

	bitmap image.Image
}

// NewObject returns an object with the editor defaults: visible, selectable,
// unit scale, opaque.
func NewObject(kind Kind) *Object {
	return &Object{Kind: kind, ScaleX: 1, ScaleY: 1, Opacity: 1, Visible: true, Selectable: true}
}

// UnmarshalJSON applies the editor defaults to fields missing from the input.
func (o *Object) UnmarshalJSON(data []byte) error {
	type plain Object
	p := plain(*NewObject(""))
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Object(p)
	return nil
}

// Scale returns the effective scale factors. Zero is read as 1.
func (o *Object) Scale() (float64, float64) {
	sx, sy := o.ScaleX, o.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return sx, sy
}

func (o *Object) ScaledSize() (float64, float64) {
	sx, sy := o.Scale()
	return o.Width * sx, o.Height * sy
}

// IsRaster reports whether the object carries pixel data rather than vectors.
func (o *Object) IsRaster() bool {
	return o.Kind == KindImage
}

// Bitmap returns the decoded image of an image object, decoding Src on first use.
func (o *Object) Bitmap() (image.Image, error) {
	if o.bitmap != nil {
		return o.bitmap, nil
	}
	if o.Kind != KindImage {
		return nil, fmt.Errorf("object %q is %s, not an image", o.ID, o.Kind)
	}
	img, err := DecodeDataURL(o.Src)
	if err != nil {
		return nil, fmt.Errorf("decode image %q: %w", o.ID, err)
	}
	o.bitmap = img
	return img, nil
}

// SetBitmap attaches an already decoded image.
func (o *Object) SetBitmap(img image.Image) {
	o.bitmap = img
}

// clone deep-copies the object tree. Decoded bitmaps are shared since they
// are never written after decoding.
func (o *Object) clone(depth int, path map[*Object]bool) (*Object, error) {
	if path[o] {
		return nil, ErrCloneCycle
	}
	if depth > maxCloneDepth {
		return nil, ErrCloneDepth
	}

	c := *o
	if o.Points != nil {
		c.Points = append([]core.Point(nil), o.Points...)
	}
	if o.Objects != nil {
		path[o] = true
		defer delete(path, o)

		c.Objects = make([]*Object, 0, len(o.Objects))
		for _, child := range o.Objects {
			if child == nil {
				continue
			}
			cc, err := child.clone(depth+1, path)
			if err != nil {
				return nil, err
			}
			c.Objects = append(c.Objects, cc)
		}
	}
	return &c, nil
}

// HasCycle reports whether a group contains itself at any depth.
func (o *Object) HasCycle() bool {
	return o.hasCycle(map[*Object]bool{})
}

func (o *Object) hasCycle(path map[*Object]bool) bool {
	if path[o] {
		return true
	}
	path[o] = true
	defer delete(path, o)
	for _, child := range o.Objects {
		if child != nil && child.hasCycle(path) {
			return true
		}
	}
	return false
}
