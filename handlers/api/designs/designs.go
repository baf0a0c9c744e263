// Package designs stores the editor scenes designers save for a template.
package designs

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"printdesign-server/canvas"
	"printdesign-server/core"
	"printdesign-server/middleware"
)

// maxSceneBytes bounds a saved scene, embedded image sources included.
const maxSceneBytes = 32 << 20

func subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.Claims(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "User claims not found"})
		return "", false
	}
	return claims.Subject, true
}

func designKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "designId")
	if err := core.ValidateKey(key); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Design id is invalid"})
		return "", false
	}
	return key, true
}

func HandleListDesigns(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := subject(w, r)
		if !ok {
			return
		}

		designs, err := store.List(r.Context(), userID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": userID,
			}).Error("Failed to list designs")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list designs"})
			return
		}

		if designs == nil {
			designs = []*core.Design{}
		}
		render.JSON(w, r, designs)
	}
}

func HandleGetDesign(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := subject(w, r)
		if !ok {
			return
		}
		key, ok := designKey(w, r)
		if !ok {
			return
		}

		design, err := store.Get(r.Context(), userID, key)
		if errors.Is(err, core.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Design not found"})
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": userID,
				"key":    key,
			}).Error("Failed to get design")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get design"})
			return
		}

		// The scene is returned as saved.
		w.Header().Set("Content-Type", "application/json")
		w.Write(design.Data)
	}
}

// HandleSaveDesign stores the request body as the design's scene. The body
// must be a scene with at least one sized view; name and thumbnail are read
// from its top-level fields when present.
func HandleSaveDesign(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := subject(w, r)
		if !ok {
			return
		}
		key, ok := designKey(w, r)
		if !ok {
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSceneBytes))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error": err,
				"key":   key,
			}).Warn("Failed to read request body")
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, map[string]string{"error": "Failed to read request body"})
			return
		}
		defer r.Body.Close()

		scene, err := canvas.ParseScene(body)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}

		var meta struct {
			Name      string `json:"name"`
			Thumbnail string `json:"thumbnail"`
		}
		_ = json.Unmarshal(body, &meta)
		name := meta.Name
		if name == "" {
			name = key
		}

		design := &core.Design{
			ID:         key,
			UserID:     userID,
			Name:       name,
			TemplateID: scene.TemplateID,
			Thumbnail:  meta.Thumbnail,
			Data:       body,
		}
		if err := store.Save(r.Context(), design); err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": userID,
				"key":    key,
			}).Error("Failed to save design")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to save design"})
			return
		}

		render.JSON(w, r, map[string]string{"id": key})
	}
}

func HandleDeleteDesign(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := subject(w, r)
		if !ok {
			return
		}
		key, ok := designKey(w, r)
		if !ok {
			return
		}

		err := store.Delete(r.Context(), userID, key)
		if errors.Is(err, core.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Design not found"})
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": userID,
				"key":    key,
			}).Error("Failed to delete design")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to delete design"})
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
