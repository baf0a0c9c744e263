// Package printzone finds the printable rectangle of a template view in
// canvas pixels. Server-declared geometry wins; overlays drawn on the canvas
// are the fallback and a sanity check.
package printzone

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"printdesign-server/canvas"
	"printdesign-server/core"
	"printdesign-server/export/geometry"
)

var ErrZoneNotFound = errors.New("print zone not found")

// DefaultStrokes are the outline colours the editor uses for print-zone rectangles.
var DefaultStrokes = []string{"#007cba"}

// mismatchTolerance is how far canvas and server geometry may drift, in canvas pixels.
const mismatchTolerance = 1.0

// TemplateSource returns server-declared view geometry. Implementations
// return an error wrapping core.ErrNotFound for unknown templates or views.
type TemplateSource interface {
	View(ctx context.Context, templateID, viewID string) (*core.TemplateView, error)
}

type Resolver struct {
	source  TemplateSource
	strokes map[string]bool
	log     logrus.FieldLogger
}

type Option func(*Resolver)

// WithStrokes replaces the outline colours that identify unmarked print-zone rectangles.
func WithStrokes(strokes []string) Option {
	return func(r *Resolver) {
		r.strokes = strokeSet(strokes)
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Resolver) {
		r.log = log
	}
}

func NewResolver(source TemplateSource, opts ...Option) *Resolver {
	r := &Resolver{
		source:  source,
		strokes: strokeSet(DefaultStrokes),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func strokeSet(strokes []string) map[string]bool {
	set := make(map[string]bool, len(strokes))
	for _, s := range strokes {
		if s = normalizeColor(s); s != "" {
			set[s] = true
		}
	}
	return set
}

func normalizeColor(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolve returns the print zone of a view on a canvas of canvasW×canvasH
// pixels. It returns ErrZoneNotFound when neither the template source nor the
// overlays describe one; callers then fall back to the full canvas.
func (r *Resolver) Resolve(ctx context.Context, templateID, viewID string, canvasW, canvasH float64, overlays []*canvas.Object) (core.PrintZone, error) {
	log := r.log.WithFields(logrus.Fields{
		"template_id": templateID,
		"view_id":     viewID,
	})

	printCandidates := r.candidates(overlays, canvas.MarkerPrintZone)
	safeCandidates := r.candidates(overlays, canvas.MarkerSafeZone)

	if r.source != nil && templateID != "" {
		view, err := r.source.View(ctx, templateID, viewID)
		switch {
		case err == nil && view != nil:
			zone := fromTemplate(view, viewID, canvasW, canvasH)
			if zone.Rect.Empty() {
				log.WithField("print_area", view.PrintAreaPx).Info("Template view declares no print area, scanning canvas overlays")
				break
			}
			if c, ok := pick(printCandidates, log, "print"); ok && !c.rect.Near(zone.Rect, mismatchTolerance) {
				log.WithFields(logrus.Fields{
					"server": zone.Rect,
					"canvas": c.rect,
				}).Warn("Print zone overlay does not match template geometry")
			}
			if zone.Safe == nil {
				if c, ok := pick(safeCandidates, log, "safe"); ok {
					safe := c.rect
					zone.Safe = &safe
				}
			}
			return zone, nil
		case ctx.Err() != nil:
			return core.PrintZone{}, ctx.Err()
		default:
			log.WithError(err).Info("Template geometry unavailable, scanning canvas overlays")
		}
	}

	c, ok := pick(printCandidates, log, "print")
	if !ok {
		return core.PrintZone{}, ErrZoneNotFound
	}
	zone := core.PrintZone{
		Rect:     c.rect,
		Rotation: c.obj.Angle,
		ViewID:   viewID,
		DPI:      core.DefaultPrintDPI,
		Source:   core.ZoneFromCanvas,
	}
	if s, ok := pick(safeCandidates, log, "safe"); ok {
		safe := s.rect
		zone.Safe = &safe
	}
	return zone, nil
}

// FullCanvas is the degraded zone used when no print zone can be resolved.
func FullCanvas(viewID string, canvasW, canvasH float64) core.PrintZone {
	return core.PrintZone{
		Rect:   core.Rect{Width: canvasW, Height: canvasH},
		ViewID: viewID,
		DPI:    core.DefaultPrintDPI,
		Source: core.ZoneFromCanvasBounds,
	}
}

// fromTemplate scales the view's declared areas onto a canvasW×canvasH canvas.
func fromTemplate(view *core.TemplateView, viewID string, canvasW, canvasH float64) core.PrintZone {
	sx, sy := 1.0, 1.0
	if view.DesignArea.Width > 0 && canvasW > 0 {
		sx = canvasW / view.DesignArea.Width
	}
	if view.DesignArea.Height > 0 && canvasH > 0 {
		sy = canvasH / view.DesignArea.Height
	}

	zone := core.PrintZone{
		Rect:   geometry.ScaleRect(view.PrintAreaPx, sx, sy),
		ViewID: viewID,
		DPI:    view.EffectiveDPI(),
		Source: core.ZoneFromServer,
	}
	if view.SafeAreaPx != nil {
		safe := geometry.ScaleRect(*view.SafeAreaPx, sx, sy)
		zone.Safe = &safe
	}
	if view.PrintAreaMm.Width > 0 && view.PrintAreaMm.Height > 0 {
		phys := view.PrintAreaMm
		zone.Physical = &phys
	}
	return zone
}

type candidate struct {
	obj  *canvas.Object
	rect core.Rect
}

func (r *Resolver) candidates(overlays []*canvas.Object, marker canvas.Marker) []candidate {
	var found []candidate
	for _, o := range overlays {
		if o == nil || !r.matches(o, marker) {
			continue
		}
		sx, sy := o.Scale()
		rect := geometry.ObjectBounds(o.Left, o.Top, o.Width, o.Height, sx, sy, o.Angle)
		if rect.Empty() {
			continue
		}
		found = append(found, candidate{obj: o, rect: rect})
	}
	return found
}

func (r *Resolver) matches(o *canvas.Object, marker canvas.Marker) bool {
	if o.Marker == marker {
		return true
	}
	if marker != canvas.MarkerPrintZone || o.Marker != "" {
		return false
	}
	_, filled := canvas.ParseColor(o.Fill)
	return o.Kind == canvas.KindRect && o.ExcludeFromExport && !filled && r.strokes[normalizeColor(o.Stroke)]
}

// pick returns the largest candidate; on equal area the later one wins.
func pick(cs []candidate, log logrus.FieldLogger, kind string) (candidate, bool) {
	if len(cs) == 0 {
		return candidate{}, false
	}
	best := cs[0]
	for _, c := range cs[1:] {
		if c.rect.Area() >= best.rect.Area() {
			best = c
		}
	}
	if len(cs) > 1 {
		log.WithFields(logrus.Fields{
			"zone":       kind,
			"candidates": len(cs),
			"chosen":     best.rect,
		}).Warn("Multiple zone overlays found")
	}
	return best, true
}
