// Package templates serves the product template geometry the export
// pipeline resolves print zones from.
package templates

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"printdesign-server/core"
)

func notFound(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, map[string]string{"error": msg})
}

func internalError(w http.ResponseWriter, r *http.Request, err error, fields logrus.Fields, msg string) {
	logrus.WithFields(fields).WithError(err).Error(msg)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, map[string]string{"error": msg})
}

func HandleListTemplates(store core.TemplateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templates, err := store.ListTemplates(r.Context())
		if err != nil {
			internalError(w, r, err, logrus.Fields{}, "Failed to list templates")
			return
		}
		if templates == nil {
			templates = []*core.Template{}
		}
		render.JSON(w, r, templates)
	}
}

func HandleGetTemplate(store core.TemplateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID := chi.URLParam(r, "templateId")
		template, err := store.GetTemplate(r.Context(), templateID)
		if errors.Is(err, core.ErrNotFound) {
			notFound(w, r, "Template not found")
			return
		}
		if err != nil {
			internalError(w, r, err, logrus.Fields{"templateId": templateID}, "Failed to get template")
			return
		}
		render.JSON(w, r, template)
	}
}

// HandleGetTemplateView answers with one view's geometry, or 404 when either
// the template or the view is unknown.
func HandleGetTemplateView(store core.TemplateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID := chi.URLParam(r, "templateId")
		viewID := chi.URLParam(r, "viewId")
		fields := logrus.Fields{"templateId": templateID, "viewId": viewID}

		template, err := store.GetTemplate(r.Context(), templateID)
		if errors.Is(err, core.ErrNotFound) {
			notFound(w, r, "Template not found")
			return
		}
		if err != nil {
			internalError(w, r, err, fields, "Failed to get template")
			return
		}

		view, ok := template.View(viewID)
		if !ok {
			logrus.WithFields(fields).Debug("Template view not found")
			notFound(w, r, "Template view not found")
			return
		}
		render.JSON(w, r, view)
	}
}
