package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mkowalczyk/dermascan/internal/api/response"
	"github.com/mkowalczyk/dermascan/internal/store"
	"github.com/mkowalczyk/dermascan/pkg/models"
)

// PatientStore defines the interface the patient handlers depend on.
type PatientStore interface {
	CreatePatient(ctx context.Context, p *models.Patient) error
	GetPatient(ctx context.Context, id int64) (*models.Patient, error)
	ListPatients(ctx context.Context) ([]*models.Patient, error)
	UpdatePatient(ctx context.Context, id int64, upd store.PatientUpdate) (*models.Patient, error)
	DeletePatient(ctx context.Context, id int64) error
}

func patientID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "patientID"), 10, 64)
	return id, err == nil && id > 0
}

// NewCreatePatientHandler returns an http.HandlerFunc for POST /api/v1/patients.
func NewCreatePatientHandler(st PatientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name  string  `json:"name"`
			Notes *string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}

		p := &models.Patient{Name: req.Name, Notes: req.Notes}
		if err := st.CreatePatient(r.Context(), p); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Created(w, p)
	}
}

// NewListPatientsHandler returns an http.HandlerFunc for GET /api/v1/patients.
func NewListPatientsHandler(st PatientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patients, err := st.ListPatients(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if patients == nil {
			patients = []*models.Patient{}
		}
		response.JSON(w, patients)
	}
}

// NewGetPatientHandler returns an http.HandlerFunc for GET /api/v1/patients/{patientID}.
func NewGetPatientHandler(st PatientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := patientID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Patient id must be a positive integer", nil)
			return
		}

		p, err := st.GetPatient(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Patient not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, p)
	}
}

// NewUpdatePatientHandler returns an http.HandlerFunc for PATCH /api/v1/patients/{patientID}.
func NewUpdatePatientHandler(st PatientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := patientID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Patient id must be a positive integer", nil)
			return
		}

		var req struct {
			Name  *string `json:"name"`
			Notes *string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name != nil {
			trimmed := strings.TrimSpace(*req.Name)
			if trimmed == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name cannot be empty", nil)
				return
			}
			req.Name = &trimmed
		}
		if req.Name == nil && req.Notes == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Nothing to update", nil)
			return
		}

		p, err := st.UpdatePatient(r.Context(), id, store.PatientUpdate{Name: req.Name, Notes: req.Notes})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Patient not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, p)
	}
}

// NewDeletePatientHandler returns an http.HandlerFunc for DELETE /api/v1/patients/{patientID}.
// The patient's body markers go with them.
func NewDeletePatientHandler(st PatientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := patientID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Patient id must be a positive integer", nil)
			return
		}

		if err := st.DeletePatient(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Patient not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, map[string]int64{"deleted": id})
	}
}
