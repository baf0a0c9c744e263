// Package classify decides which canvas objects belong to the user's design.
package classify

import "printdesign-server/canvas"

// Category is the role an object plays in an export pass.
type Category int

const (
	// Excluded objects are neither rendered nor counted.
	Excluded Category = iota
	Design
	Background
	SystemOverlay
)

func (c Category) String() string {
	switch c {
	case Design:
		return "design"
	case Background:
		return "background"
	case SystemOverlay:
		return "system-overlay"
	default:
		return "excluded"
	}
}

// Result partitions the classified objects, each list in input (z) order.
type Result struct {
	Design        []*canvas.Object
	Background    []*canvas.Object
	SystemOverlay []*canvas.Object
}

// Overlays is the set of overlay objects a session has registered, compared
// by identity.
type Overlays map[*canvas.Object]struct{}

func NewOverlays(objects ...*canvas.Object) Overlays {
	set := make(Overlays, len(objects))
	for _, o := range objects {
		if o != nil {
			set[o] = struct{}{}
		}
	}
	return set
}

func (s Overlays) Contains(o *canvas.Object) bool {
	_, ok := s[o]
	return ok
}

// Categorize applies the rules in order; the first match wins.
func Categorize(o *canvas.Object, overlays Overlays) Category {
	switch {
	case o == nil:
		return Excluded
	case overlays.Contains(o), o.ExcludeFromExport:
		return SystemOverlay
	case o.IsBackground, o.Kind == canvas.KindImage && !o.Selectable:
		return Background
	case o.Selectable && o.Visible:
		return Design
	default:
		return Excluded
	}
}

// Classify sorts objects into design, background and system-overlay sets.
// Nil entries are skipped.
func Classify(objects []*canvas.Object, overlays Overlays) Result {
	var r Result
	for _, o := range objects {
		switch Categorize(o, overlays) {
		case Design:
			r.Design = append(r.Design, o)
		case Background:
			r.Background = append(r.Background, o)
		case SystemOverlay:
			r.SystemOverlay = append(r.SystemOverlay, o)
		}
	}
	return r
}
