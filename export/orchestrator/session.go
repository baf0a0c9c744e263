// Package orchestrator sequences the export of every view of a design:
// zone resolution, rendering and upload.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"printdesign-server/canvas"
	"printdesign-server/core"
	"printdesign-server/export/classify"
	"printdesign-server/export/geometry"
	"printdesign-server/export/persist"
	"printdesign-server/export/printzone"
	"printdesign-server/export/render"
	"printdesign-server/export/retry"
)

// Uploader persists a rendered view. *persist.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, designID, viewID string, result core.ExportResult, meta persist.Meta) (*persist.UploadReceipt, error)
}

// View is one canvas of a multi-view design. Overlays are the guide objects
// the editor placed; objects carrying a marker are added automatically.
type View struct {
	ID       string
	Engine   render.Engine
	Overlays []*canvas.Object
}

type Config struct {
	DesignID   string
	TemplateID string
	Views      []View
	// Templates supplies server-declared view geometry. It is cached per
	// template for the life of the session.
	Templates    printzone.TemplateSource
	Strokes      []string
	Uploader     Uploader
	Observer     Observer
	Strategies   []render.Strategy
	StrictClones bool
	ReadyPolicy  retry.Policy
	Log          logrus.FieldLogger
}

// Session exports the views of one design. Views run one at a time.
type Session struct {
	cfg       Config
	templates *printzone.Cache
	resolver  *printzone.Resolver
	gates     map[string]*retry.Gate
	mu        sync.Mutex
	log       logrus.FieldLogger
}

func NewSession(cfg Config) *Session {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.ReadyPolicy.MaxAttempts == 0 {
		cfg.ReadyPolicy = retry.DefaultPolicy
	}
	log := cfg.Log.WithFields(logrus.Fields{
		"design_id":   cfg.DesignID,
		"template_id": cfg.TemplateID,
	})

	s := &Session{cfg: cfg, gates: make(map[string]*retry.Gate, len(cfg.Views)), log: log}
	var source printzone.TemplateSource
	if cfg.Templates != nil {
		s.templates = printzone.NewCache(cfg.Templates)
		source = s.templates
	}
	opts := []printzone.Option{printzone.WithLogger(log)}
	if len(cfg.Strokes) > 0 {
		opts = append(opts, printzone.WithStrokes(cfg.Strokes))
	}
	s.resolver = printzone.NewResolver(source, opts...)

	for _, v := range cfg.Views {
		if v.Engine != nil {
			s.gates[v.ID] = retry.NewGate(v.Engine.Ready, cfg.ReadyPolicy)
		}
	}
	return s
}

// SwitchTemplate points the session at another template. Cached geometry of
// the previous one is dropped.
func (s *Session) SwitchTemplate(templateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if templateID == s.cfg.TemplateID {
		return
	}
	s.cfg.TemplateID = templateID
	if s.templates != nil {
		s.templates.Reset()
	}
}

func (s *Session) templateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.TemplateID
}

// ViewOutcome is the per-view entry of a Report.
type ViewOutcome struct {
	ViewID  string                 `json:"viewId"`
	State   State                  `json:"state"`
	Zone    core.PrintZone         `json:"zone"`
	Result  *core.ExportResult     `json:"result,omitempty"`
	Receipt *persist.UploadReceipt `json:"receipt,omitempty"`
	Message string                 `json:"message,omitempty"`
	Err     *StageError            `json:"error,omitempty"`
}

// Report is the outcome of ExportAllViews.
type Report struct {
	DesignID   string        `json:"designId"`
	TemplateID string        `json:"templateId"`
	Views      []ViewOutcome `json:"views"`
	Failed     bool          `json:"failed"`
	Err        *StageError   `json:"error,omitempty"`
}

// ExportAllViews exports every view in order. A failed view does not stop
// the next one; the report fails only when every view failed or an upload
// hit a fatal error.
func (s *Session) ExportAllViews(ctx context.Context, req core.ExportRequest) Report {
	report := Report{DesignID: s.cfg.DesignID, TemplateID: s.templateID()}
	failures := 0
	for _, v := range s.cfg.Views {
		if ctx.Err() != nil {
			out := ViewOutcome{ViewID: v.ID, State: Failed, Err: &StageError{Stage: Idle, Code: core.CodeInternal, Err: ctx.Err()}}
			report.Views = append(report.Views, out)
			failures++
			continue
		}
		out := s.ExportView(ctx, v.ID, req)
		report.Views = append(report.Views, out)
		if out.State != Failed {
			continue
		}
		failures++
		if out.Err != nil && persist.IsFatal(out.Err) && report.Err == nil {
			report.Err = out.Err
		}
	}
	if report.Err != nil || (failures > 0 && failures == len(report.Views)) {
		report.Failed = true
		if report.Err == nil && len(report.Views) > 0 {
			report.Err = report.Views[len(report.Views)-1].Err
		}
	}
	s.log.WithFields(logrus.Fields{
		"views":    len(report.Views),
		"failures": failures,
	}).Info("Export session finished")
	return report
}

// ExportView runs one view through the state machine. It never panics; every
// failure is reported in the outcome.
func (s *Session) ExportView(ctx context.Context, viewID string, req core.ExportRequest) (out ViewOutcome) {
	out = ViewOutcome{ViewID: viewID, State: Idle}
	templateID := s.templateID()
	log := s.log.WithFields(logrus.Fields{"view_id": viewID, "template_id": templateID})

	transition := func(state State, message string, code core.ErrorCode) {
		out.State = state
		s.cfg.Observer.OnTransition(Event{
			DesignID:   s.cfg.DesignID,
			TemplateID: templateID,
			ViewID:     viewID,
			State:      state,
			Message:    message,
			Code:       code,
			At:         time.Now(),
		})
	}
	fail := func(se *StageError) ViewOutcome {
		out.Err = se
		out.Message = se.Message()
		log.WithError(se).Error("View export failed")
		transition(Failed, out.Message, se.Code)
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			stage := out.State
			out = fail(&StageError{Stage: stage, Code: core.CodeInternal, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	view, ok := s.view(viewID)
	if !ok {
		return fail(&StageError{Stage: Idle, Code: core.CodeInternal, Err: fmt.Errorf("unknown view %q", viewID)})
	}

	transition(ResolvingZone, "", "")
	gate := s.gates[viewID]
	if !gate.Open() {
		log.Debug("Waiting for canvas engine")
	}
	if err := gate.Wait(ctx); err != nil {
		return fail(&StageError{Stage: ResolvingZone, Code: core.CodeInternal, Err: err})
	}

	objects := view.Engine.Objects()
	overlays := collectOverlays(view, objects)
	sorted := classify.Classify(objects, classify.NewOverlays(overlays...))

	w, h := view.Engine.Size()
	zone, err := s.resolver.Resolve(ctx, templateID, viewID, float64(w), float64(h), overlays)
	degraded := false
	if errors.Is(err, printzone.ErrZoneNotFound) {
		log.Warn("No print zone found, exporting the full canvas")
		zone = printzone.FullCanvas(viewID, float64(w), float64(h))
		degraded = true
		out.Message = MsgZoneNotDetected
	} else if err != nil {
		return fail(&StageError{Stage: ResolvingZone, Code: core.CodeInternal, Err: err})
	}
	zone = geometry.ExpandForBleed(zone, req.BleedMM)
	out.Zone = zone

	transition(Rendering, out.Message, "")
	m := multiplier(req, zone)
	result, err := render.New(view.Engine, render.WithLogger(log)).Render(ctx, sorted.Design, zone, m, render.Options{
		Format:       req.Format,
		Quality:      req.Quality,
		StrictClones: s.cfg.StrictClones,
		Strategies:   s.cfg.Strategies,
		ViewID:       viewID,
		TemplateID:   templateID,
	})
	if err != nil {
		return fail(renderError(err))
	}
	if degraded {
		result.Degraded = true
		result.Warnings = append(result.Warnings, core.Warning{Code: core.CodeZoneNotFound, Message: MsgZoneNotDetected})
	}
	out.Result = &result

	if s.cfg.Uploader != nil {
		transition(Persisting, "", "")
		receipt, err := s.cfg.Uploader.Upload(ctx, s.cfg.DesignID, viewID, result, uploadMeta(templateID, zone))
		if err != nil {
			return fail(persistError(err))
		}
		out.Receipt = receipt
	}

	log.WithFields(logrus.Fields{
		"strategy": result.StrategyUsed,
		"elements": result.ElementCount,
		"width":    result.PixelWidth,
		"height":   result.PixelHeight,
	}).Info("View exported")
	transition(Done, out.Message, "")
	return out
}

func (s *Session) view(id string) (View, bool) {
	for _, v := range s.cfg.Views {
		if v.ID == id && v.Engine != nil {
			return v, true
		}
	}
	return View{}, false
}

// markedEngine is implemented by engines that index their overlay objects.
type markedEngine interface {
	Marked(marker canvas.Marker) []*canvas.Object
}

func collectOverlays(v View, objects []*canvas.Object) []*canvas.Object {
	var tagged []*canvas.Object
	if m, ok := v.Engine.(markedEngine); ok {
		tagged = append(m.Marked(canvas.MarkerPrintZone), m.Marked(canvas.MarkerSafeZone)...)
	} else {
		for _, o := range objects {
			if o != nil && o.Marker != "" {
				tagged = append(tagged, o)
			}
		}
	}

	seen := make(map[*canvas.Object]bool, len(v.Overlays)+len(tagged))
	overlays := make([]*canvas.Object, 0, len(v.Overlays)+len(tagged))
	for _, list := range [][]*canvas.Object{v.Overlays, tagged} {
		for _, o := range list {
			if o != nil && !seen[o] {
				seen[o] = true
				overlays = append(overlays, o)
			}
		}
	}
	return overlays
}

// multiplier prefers an explicit multiplier, then a requested DPI, then the
// zone's print DPI.
func multiplier(req core.ExportRequest, zone core.PrintZone) float64 {
	switch {
	case req.Multiplier != 0:
		return req.Multiplier
	case req.DPI > 0:
		return geometry.MultiplierForDPI(req.DPI, core.ScreenDPI)
	case zone.DPI > 0:
		return geometry.MultiplierForDPI(zone.DPI, core.ScreenDPI)
	}
	return geometry.MultiplierForDPI(core.DefaultPrintDPI, core.ScreenDPI)
}

func uploadMeta(templateID string, zone core.PrintZone) persist.Meta {
	meta := persist.Meta{TemplateID: templateID, PrintAreaPx: zone.Rect}
	if zone.Physical != nil {
		meta.PrintAreaMm = *zone.Physical
		return meta
	}
	size := geometry.ZoneRelativeToPhysical(core.Point{X: zone.Rect.Width, Y: zone.Rect.Height}, zone, core.ScreenDPI)
	meta.PrintAreaMm = core.Rect{Width: size.MM.X, Height: size.MM.Y}
	return meta
}
