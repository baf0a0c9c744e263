// Package snapshots receives rendered print files and serves the latest one
// per design view.
package snapshots

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"printdesign-server/core"
	"printdesign-server/middleware"
)

// multipartMemory is how much of an upload is kept in memory before the
// multipart reader spills to disk.
const multipartMemory = 8 << 20

// Store is what the snapshot handlers need: ownership checks and snapshots.
type Store interface {
	core.DesignStore
	core.SnapshotStore
}

// TooLargeResponse is the 413 body. Size is the declared request size and may
// be -1 when the client streamed without a length.
type TooLargeResponse struct {
	Error string         `json:"error"`
	Code  core.ErrorCode `json:"code"`
	Limit int64          `json:"limit"`
	Size  int64          `json:"size"`
}

func errorJSON(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

// ownedDesign checks the URL ids and that the caller owns the design.
func ownedDesign(w http.ResponseWriter, r *http.Request, store core.DesignStore) (userID, designID string, ok bool) {
	claims, found := middleware.Claims(r.Context())
	if !found {
		errorJSON(w, r, http.StatusUnauthorized, "User claims not found")
		return "", "", false
	}
	designID = chi.URLParam(r, "designId")
	if err := core.ValidateKey(designID); err != nil {
		errorJSON(w, r, http.StatusBadRequest, "Design id is invalid")
		return "", "", false
	}

	_, err := store.Get(r.Context(), claims.Subject, designID)
	if errors.Is(err, core.ErrNotFound) {
		errorJSON(w, r, http.StatusNotFound, "Design not found")
		return "", "", false
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"error":    err,
			"designId": designID,
		}).Error("Failed to look up design")
		errorJSON(w, r, http.StatusInternalServerError, "Failed to look up design")
		return "", "", false
	}
	return claims.Subject, designID, true
}

func viewKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	viewID := chi.URLParam(r, "viewId")
	if err := core.ValidateKey(viewID); err != nil {
		errorJSON(w, r, http.StatusBadRequest, "View id is invalid")
		return "", false
	}
	return viewID, true
}

// HandleUploadSnapshot stores a print file for one design view, replacing
// the previous one. Bodies over maxBytes are answered with 413.
func HandleUploadSnapshot(store Store, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, designID, ok := ownedDesign(w, r, store)
		if !ok {
			return
		}
		viewID, ok := viewKey(w, r)
		if !ok {
			return
		}
		fields := logrus.Fields{"designId": designID, "viewId": viewID, "size": r.ContentLength}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				logrus.WithFields(fields).Warn("Snapshot upload too large")
				render.Status(r, http.StatusRequestEntityTooLarge)
				render.JSON(w, r, TooLargeResponse{
					Error: "File too large",
					Code:  core.CodePayloadTooLarge,
					Limit: maxBytes,
					Size:  r.ContentLength,
				})
				return
			}
			errorJSON(w, r, http.StatusBadRequest, "Invalid multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, _, err := r.FormFile("png_file")
		if err != nil {
			errorJSON(w, r, http.StatusBadRequest, "png_file is required")
			return
		}
		defer file.Close()
		payload, err := io.ReadAll(file)
		if err != nil {
			errorJSON(w, r, http.StatusBadRequest, "Failed to read png_file")
			return
		}

		cfg, format, err := image.DecodeConfig(bytes.NewReader(payload))
		if err != nil {
			errorJSON(w, r, http.StatusBadRequest, "png_file is not a PNG or JPEG image")
			return
		}

		record := &core.DesignSnapshotRecord{
			DesignID:    designID,
			ViewID:      viewID,
			TemplateID:  r.FormValue("template_id"),
			UserID:      userID,
			PixelWidth:  cfg.Width,
			PixelHeight: cfg.Height,
			ByteSize:    int64(len(payload)),
		}
		if err := parseMeta(r, record); err != nil {
			errorJSON(w, r, http.StatusBadRequest, err.Error())
			return
		}

		if err := store.PutSnapshot(r.Context(), record, payload); err != nil {
			logrus.WithFields(fields).WithError(err).Error("Failed to store snapshot")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to store snapshot")
			return
		}

		logrus.WithFields(fields).WithFields(logrus.Fields{
			"format": format,
			"width":  cfg.Width,
			"height": cfg.Height,
			"dpi":    record.DPI,
		}).Info("Snapshot stored")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, record)
	}
}

// parseMeta reads the print specification fields. All are optional; a
// declared width or height must match the decoded image.
func parseMeta(r *http.Request, record *core.DesignSnapshotRecord) error {
	for _, f := range []struct {
		name string
		dst  *core.Rect
	}{
		{"print_area_px", &record.PrintAreaPx},
		{"print_area_mm", &record.PrintAreaMm},
	} {
		if v := r.FormValue(f.name); v != "" {
			if err := json.Unmarshal([]byte(v), f.dst); err != nil {
				return fmt.Errorf("%s is not a rectangle", f.name)
			}
		}
	}

	if v := r.FormValue("dpi"); v != "" {
		dpi, err := strconv.ParseFloat(v, 64)
		if err != nil || dpi <= 0 {
			return fmt.Errorf("dpi must be a positive number")
		}
		record.DPI = dpi
	}

	for _, f := range []struct {
		name   string
		actual int
	}{
		{"width", record.PixelWidth},
		{"height", record.PixelHeight},
	} {
		v := r.FormValue(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer", f.name)
		}
		if n != f.actual {
			return fmt.Errorf("%s %d does not match the image (%d)", f.name, n, f.actual)
		}
	}
	return nil
}

func HandleListSnapshots(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, designID, ok := ownedDesign(w, r, store)
		if !ok {
			return
		}

		records, err := store.ListSnapshots(r.Context(), designID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":    err,
				"designId": designID,
			}).Error("Failed to list snapshots")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to list snapshots")
			return
		}
		if records == nil {
			records = []*core.DesignSnapshotRecord{}
		}
		render.JSON(w, r, records)
	}
}

// HandleGetSnapshotFile writes the stored image bytes of one view.
func HandleGetSnapshotFile(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, designID, ok := ownedDesign(w, r, store)
		if !ok {
			return
		}
		viewID, ok := viewKey(w, r)
		if !ok {
			return
		}
		fields := logrus.Fields{"designId": designID, "viewId": viewID}

		record, err := store.GetSnapshot(r.Context(), designID, viewID)
		if errors.Is(err, core.ErrNotFound) {
			errorJSON(w, r, http.StatusNotFound, "Snapshot not found")
			return
		}
		if err != nil {
			logrus.WithFields(fields).WithError(err).Error("Failed to get snapshot")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to get snapshot")
			return
		}

		data, err := store.ReadSnapshot(r.Context(), record)
		if err != nil {
			logrus.WithFields(fields).WithError(err).Error("Failed to read snapshot")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to read snapshot")
			return
		}

		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("X-Print-DPI", strconv.FormatFloat(record.DPI, 'f', -1, 64))
		w.Write(data)
	}
}
