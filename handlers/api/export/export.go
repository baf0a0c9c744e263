// Package export runs the print export pipeline for a saved design.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"printdesign-server/canvas"
	"printdesign-server/core"
	"printdesign-server/export/orchestrator"
	"printdesign-server/export/persist"
	"printdesign-server/export/printzone"
	exportrender "printdesign-server/export/render"
	"printdesign-server/handlers/auth"
	"printdesign-server/middleware"
)

const maxRequestBytes = 64 << 10

// Request is the body of an export call. Zero values pick the defaults:
// every view, 300 DPI, PNG.
type Request struct {
	ViewID       string   `json:"view_id"`
	TemplateID   string   `json:"template_id"`
	DPI          float64  `json:"dpi"`
	Multiplier   float64  `json:"multiplier"`
	Format       string   `json:"format"`
	Quality      float64  `json:"quality"`
	BleedMM      float64  `json:"bleed_mm"`
	Persist      bool     `json:"persist"`
	Strategies   []string `json:"strategies"`
	StrictClones bool     `json:"strict_clones"`
}

func (r *Request) validate() error {
	switch core.ExportFormat(r.Format) {
	case "", core.FormatPNG, core.FormatJPEG:
	default:
		return fmt.Errorf("format must be png or jpeg")
	}
	if r.Quality < 0 || r.Quality > 1 {
		return fmt.Errorf("quality must be between 0 and 1")
	}
	if r.DPI < 0 {
		return fmt.Errorf("dpi must not be negative")
	}
	if r.BleedMM < 0 {
		return fmt.Errorf("bleed_mm must not be negative")
	}
	if r.ViewID != "" {
		if err := core.ValidateKey(r.ViewID); err != nil {
			return fmt.Errorf("view_id is invalid")
		}
	}
	for _, s := range r.Strategies {
		switch exportrender.Strategy(s) {
		case exportrender.ClipAndScale, exportrender.Offscreen, exportrender.Composite:
		default:
			return fmt.Errorf("unknown strategy %q", s)
		}
	}
	return nil
}

func (r *Request) strategies() []exportrender.Strategy {
	if len(r.Strategies) == 0 {
		return nil
	}
	out := make([]exportrender.Strategy, len(r.Strategies))
	for i, s := range r.Strategies {
		out[i] = exportrender.Strategy(s)
	}
	return out
}

// Notifier is told about every state transition and the final report.
type Notifier interface {
	Observer(designID string) orchestrator.Observer
	Complete(designID string, report orchestrator.Report)
}

// Deps wires the export handler.
type Deps struct {
	Designs   core.DesignStore
	Templates core.TemplateStore
	// TemplateSource, when set, supplies print-zone geometry instead of Templates.
	TemplateSource printzone.TemplateSource
	// PublicBaseURL is where the upload endpoint is reachable when an export
	// persists its result.
	PublicBaseURL string
	HTTPClient    *http.Client
	Guard         *persist.Guard
	Strokes       []string
	Notifier      Notifier
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, map[string]string{"error": msg})
}

// HandleExport renders one view, or every view, of the caller's design. The
// response is always 200 with a report once the request itself is valid;
// per-view failures are inside the report.
func HandleExport(deps Deps) http.HandlerFunc {
	if deps.Guard == nil {
		deps.Guard = persist.NewGuard()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	source := deps.TemplateSource
	if source == nil {
		source = printzone.StoreSource{Store: deps.Templates}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.Claims(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}
		designID := chi.URLParam(r, "designId")
		if err := core.ValidateKey(designID); err != nil {
			badRequest(w, r, "Design id is invalid")
			return
		}

		var req Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			badRequest(w, r, "Invalid export request")
			return
		}
		if err := req.validate(); err != nil {
			badRequest(w, r, err.Error())
			return
		}

		log := logrus.WithFields(logrus.Fields{
			"designId": designID,
			"userID":   claims.Subject,
			"viewId":   req.ViewID,
		})

		design, err := deps.Designs.Get(r.Context(), claims.Subject, designID)
		if errors.Is(err, core.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Design not found"})
			return
		}
		if err != nil {
			log.WithError(err).Error("Failed to load design")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to load design"})
			return
		}

		scene, err := canvas.ParseScene(design.Data)
		if err != nil {
			log.WithError(err).Warn("Stored design is not a valid scene")
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}

		templateID := firstNonEmpty(req.TemplateID, scene.TemplateID, design.TemplateID)
		if templateID == "" {
			badRequest(w, r, "Design has no template")
			return
		}

		views, err := buildViews(scene, req.ViewID, log)
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}

		var uploader orchestrator.Uploader
		if req.Persist {
			token, _ := auth.BearerToken(r)
			uploader = persist.NewClient(deps.PublicBaseURL,
				persist.NewRefreshingToken(deps.PublicBaseURL, token, deps.HTTPClient),
				persist.WithHTTPClient(deps.HTTPClient),
				persist.WithGuard(deps.Guard),
				persist.WithLogger(log),
			)
		}

		var observer orchestrator.Observer
		if deps.Notifier != nil {
			observer = deps.Notifier.Observer(designID)
		}

		session := orchestrator.NewSession(orchestrator.Config{
			DesignID:     designID,
			TemplateID:   templateID,
			Views:        views,
			Templates:    source,
			Strokes:      deps.Strokes,
			Uploader:     uploader,
			Observer:     observer,
			Strategies:   req.strategies(),
			StrictClones: req.StrictClones,
			Log:          log,
		})

		exportReq := core.ExportRequest{
			TemplateID: templateID,
			ViewID:     req.ViewID,
			Multiplier: req.Multiplier,
			DPI:        req.DPI,
			Format:     core.ExportFormat(req.Format),
			Quality:    req.Quality,
			BleedMM:    req.BleedMM,
		}

		var report orchestrator.Report
		if req.ViewID != "" {
			out := session.ExportView(r.Context(), req.ViewID, exportReq)
			report = orchestrator.Report{
				DesignID:   designID,
				TemplateID: templateID,
				Views:      []orchestrator.ViewOutcome{out},
				Failed:     out.State == orchestrator.Failed,
				Err:        out.Err,
			}
		} else {
			report = session.ExportAllViews(r.Context(), exportReq)
		}

		if deps.Notifier != nil {
			deps.Notifier.Complete(designID, report)
		}
		log.WithField("failed", report.Failed).Info("Export finished")
		render.JSON(w, r, report)
	}
}

// buildViews creates a canvas per scene view, or only for viewID when set.
func buildViews(scene *canvas.Scene, viewID string, log logrus.FieldLogger) ([]orchestrator.View, error) {
	ids := scene.ViewIDs()
	if viewID != "" {
		ids = []string{viewID}
	}

	views := make([]orchestrator.View, 0, len(ids))
	for _, id := range ids {
		v, ok := scene.View(id)
		if !ok {
			return nil, fmt.Errorf("design has no view %q", id)
		}
		views = append(views, orchestrator.View{ID: v.ID, Engine: canvas.FromView(v, canvas.WithLogger(log))})
	}
	return views, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
