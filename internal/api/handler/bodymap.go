package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkowalczyk/dermascan/internal/api/response"
	"github.com/mkowalczyk/dermascan/internal/store"
	"github.com/mkowalczyk/dermascan/pkg/models"
)

// MarkerStore defines the interface the body map handlers depend on.
type MarkerStore interface {
	GetPatient(ctx context.Context, id int64) (*models.Patient, error)
	CreateMarker(ctx context.Context, m *models.BodyMarker) error
	GetMarker(ctx context.Context, id int64) (*models.BodyMarker, error)
	ListMarkers(ctx context.Context, patientID int64) ([]*models.BodyMarker, error)
	UpdateMarker(ctx context.Context, id int64, upd store.MarkerUpdate) (*models.BodyMarker, error)
	DeleteMarker(ctx context.Context, id int64) error
}

func markerID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "markerID"), 10, 64)
	return id, err == nil && id > 0
}

func validCoord(v float64) bool { return v >= 0 && v <= 1 }

// NewCreateMarkerHandler returns an http.HandlerFunc for POST /api/v1/bodymap/markers.
func NewCreateMarkerHandler(st MarkerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PatientID int64    `json:"patient_id"`
			X         *float64 `json:"x"`
			Y         *float64 `json:"y"`
			View      string   `json:"view"`
			Label     string   `json:"label"`
			Notes     *string  `json:"notes"`
			ScanID    *int64   `json:"scan_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.PatientID <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "patient_id is required", nil)
			return
		}
		if req.X == nil || req.Y == nil || !validCoord(*req.X) || !validCoord(*req.Y) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"x and y must be between 0 and 1", nil)
			return
		}
		if !models.ValidView(req.View) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"view must be 'front' or 'back'", nil)
			return
		}
		if req.Label == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "label is required", nil)
			return
		}

		if _, err := st.GetPatient(r.Context(), req.PatientID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Patient not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		m := &models.BodyMarker{
			PatientID: req.PatientID,
			X:         *req.X,
			Y:         *req.Y,
			View:      req.View,
			Label:     req.Label,
			Notes:     req.Notes,
			ScanID:    req.ScanID,
		}
		if err := st.CreateMarker(r.Context(), m); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Created(w, m)
	}
}

// NewListMarkersHandler returns an http.HandlerFunc for GET /api/v1/bodymap/markers.
// The patient_id query parameter is required.
func NewListMarkersHandler(st MarkerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid, err := strconv.ParseInt(r.URL.Query().Get("patient_id"), 10, 64)
		if err != nil || pid <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"patient_id query parameter is required", nil)
			return
		}

		if _, err := st.GetPatient(r.Context(), pid); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Patient not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		markers, err := st.ListMarkers(r.Context(), pid)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if markers == nil {
			markers = []*models.BodyMarker{}
		}
		response.JSON(w, markers)
	}
}

// NewGetMarkerHandler returns an http.HandlerFunc for GET /api/v1/bodymap/markers/{markerID}.
func NewGetMarkerHandler(st MarkerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := markerID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Marker id must be a positive integer", nil)
			return
		}

		m, err := st.GetMarker(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Marker not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, m)
	}
}

// NewUpdateMarkerHandler returns an http.HandlerFunc for PATCH /api/v1/bodymap/markers/{markerID}.
func NewUpdateMarkerHandler(st MarkerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := markerID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Marker id must be a positive integer", nil)
			return
		}

		var req struct {
			X      *float64 `json:"x"`
			Y      *float64 `json:"y"`
			View   *string  `json:"view"`
			Label  *string  `json:"label"`
			Notes  *string  `json:"notes"`
			ScanID *int64   `json:"scan_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.X != nil && !validCoord(*req.X) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"x must be between 0 and 1", nil)
			return
		}
		if req.Y != nil && !validCoord(*req.Y) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"y must be between 0 and 1", nil)
			return
		}
		if req.View != nil && !models.ValidView(*req.View) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"view must be 'front' or 'back'", nil)
			return
		}
		if req.Label != nil && *req.Label == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"label cannot be empty", nil)
			return
		}

		m, err := st.UpdateMarker(r.Context(), id, store.MarkerUpdate{
			X:      req.X,
			Y:      req.Y,
			View:   req.View,
			Label:  req.Label,
			Notes:  req.Notes,
			ScanID: req.ScanID,
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Marker not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, m)
	}
}

// NewDeleteMarkerHandler returns an http.HandlerFunc for DELETE /api/v1/bodymap/markers/{markerID}.
func NewDeleteMarkerHandler(st MarkerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := markerID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Marker id must be a positive integer", nil)
			return
		}

		if err := st.DeleteMarker(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Marker not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, map[string]int64{"deleted": id})
	}
}
