// Package render produces print rasters of the design objects inside a print
// zone. Three strategies are tried in order and the first success wins.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/sirupsen/logrus"

	"printdesign-server/canvas"
	"printdesign-server/core"
	"printdesign-server/export/geometry"
)

// Engine is the canvas engine capability the renderer needs.
type Engine interface {
	Size() (width, height int)
	Objects() []*canvas.Object
	Ready(ctx context.Context) error
	Rasterize(scale float64, objects []*canvas.Object) (image.Image, error)
	Clone(o *canvas.Object) (*canvas.Object, error)
	NewSurface(width, height int) (canvas.Surface, error)
}

type Strategy string

const (
	ClipAndScale Strategy = "clip-and-scale"
	Offscreen    Strategy = "offscreen"
	Composite    Strategy = "composite"
)

// DefaultStrategies is the fallback order.
var DefaultStrategies = []Strategy{ClipAndScale, Offscreen, Composite}

var (
	ErrInvalidMultiplier = geometry.ErrInvalidMultiplier
	ErrDegenerateRaster  = errors.New("degenerate raster")
	ErrCloneFailure      = errors.New("clone failure")
	ErrUnknownStrategy   = errors.New("unknown strategy")
)

// StrategyError records why one strategy failed.
type StrategyError struct {
	Strategy Strategy
	Err      error
}

func (e StrategyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
}

func (e StrategyError) Unwrap() error {
	return e.Err
}

// AllStrategiesFailedError is returned when no strategy produced a raster.
type AllStrategiesFailedError struct {
	Attempts []StrategyError
}

func (e *AllStrategiesFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return "all render strategies failed: " + strings.Join(parts, "; ")
}

func (e *AllStrategiesFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}

// Options tune one render call.
type Options struct {
	Format  core.ExportFormat
	Quality float64
	// StrictClones turns a skipped object into a failure of the offscreen strategy.
	StrictClones bool
	Strategies   []Strategy
	ViewID       string
	TemplateID   string
}

type Renderer struct {
	engine Engine
	log    logrus.FieldLogger
}

type Option func(*Renderer)

func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Renderer) {
		r.log = log
	}
}

func New(engine Engine, opts ...Option) *Renderer {
	r := &Renderer{engine: engine, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// outcome is what a strategy hands back before encoding.
type outcome struct {
	img      image.Image
	count    int
	warnings []core.Warning
}

type strategyFunc func(objects []*canvas.Object, zone core.PrintZone, m float64, opts Options) (outcome, error)

// Render rasterises objects clipped to zone at multiplier m. The live canvas
// is never modified.
func (r *Renderer) Render(ctx context.Context, objects []*canvas.Object, zone core.PrintZone, m float64, opts Options) (core.ExportResult, error) {
	if err := geometry.ValidateMultiplier(m); err != nil {
		return core.ExportResult{}, err
	}
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}

	log := r.log.WithFields(logrus.Fields{
		"view_id":    opts.ViewID,
		"multiplier": m,
		"objects":    len(objects),
	})

	failed := &AllStrategiesFailedError{}
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return core.ExportResult{}, err
		}
		out, err := r.attempt(s, objects, zone, m, opts)
		if err == nil {
			res, encErr := encode(out.img, opts)
			if encErr == nil {
				res.ElementCount = out.count
				res.StrategyUsed = string(s)
				res.Warnings = out.warnings
				res.DPI = m * core.ScreenDPI
				res.ViewID = opts.ViewID
				res.TemplateID = opts.TemplateID
				res.Degraded = s == Composite
				log.WithFields(logrus.Fields{
					"strategy": s,
					"width":    res.PixelWidth,
					"height":   res.PixelHeight,
					"bytes":    res.ByteSize,
				}).Debug("Rendered print zone")
				return res, nil
			}
			err = encErr
		}
		log.WithFields(logrus.Fields{
			"strategy": s,
			"error":    err,
		}).Warn("Render strategy failed")
		failed.Attempts = append(failed.Attempts, StrategyError{Strategy: s, Err: err})
	}
	return core.ExportResult{}, failed
}

// attempt runs one strategy and turns a panic into a strategy failure.
func (r *Renderer) attempt(s Strategy, objects []*canvas.Object, zone core.PrintZone, m float64, opts Options) (out outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	var fn strategyFunc
	switch s {
	case ClipAndScale:
		fn = r.clipAndScale
	case Offscreen:
		fn = r.offscreen
	case Composite:
		fn = r.composite
	default:
		return outcome{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
	return fn(objects, zone, m, opts)
}

// outputRect is the zone in output pixels, anchored at the scaled zone origin.
func outputRect(zone core.PrintZone, m float64) (image.Rectangle, error) {
	w, h := geometry.ScaleForOutput(core.Size{Width: zone.Rect.Width, Height: zone.Rect.Height}, m)
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: %dx%d", ErrDegenerateRaster, w, h)
	}
	x0, y0 := geometry.ScaleForOutput(core.Size{Width: zone.Rect.X, Height: zone.Rect.Y}, m)
	return image.Rect(x0, y0, x0+w, y0+h), nil
}
