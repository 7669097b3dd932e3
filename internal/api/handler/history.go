package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkowalczyk/dermascan/internal/api/response"
	"github.com/mkowalczyk/dermascan/internal/store"
	"github.com/mkowalczyk/dermascan/pkg/models"
)

// ScanReader defines the interface the history handlers depend on.
type ScanReader interface {
	GetScan(ctx context.Context, id int64) (*models.Scan, error)
	History(ctx context.Context, page, limit int) ([]*models.Scan, int, error)
	DeleteScan(ctx context.Context, id int64) error
}

func scanID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "scanID"), 10, 64)
	return id, err == nil && id > 0
}

// NewListHistoryHandler returns an http.HandlerFunc for GET /api/v1/history.
func NewListHistoryHandler(svc ScanReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		scans, total, err := svc.History(r.Context(), page, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if scans == nil {
			scans = []*models.Scan{}
		}

		response.Collection(w, scans, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewGetScanHandler returns an http.HandlerFunc for GET /api/v1/history/{scanID}.
func NewGetScanHandler(svc ScanReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := scanID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Scan id must be a positive integer", nil)
			return
		}

		scan, err := svc.GetScan(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Scan not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, scan)
	}
}

// NewDeleteScanHandler returns an http.HandlerFunc for DELETE /api/v1/history/{scanID}.
func NewDeleteScanHandler(svc ScanReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := scanID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Scan id must be a positive integer", nil)
			return
		}

		if err := svc.DeleteScan(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Scan not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, map[string]int64{"deleted": id})
	}
}

// NewOriginalImageHandler streams the stored original image for a scan.
func NewOriginalImageHandler(svc ScanReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := scanID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Scan id must be a positive integer", nil)
			return
		}

		scan, err := svc.GetScan(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Scan not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		serveImage(w, r, scan.OriginalImagePath)
	}
}

// NewHeatmapImageHandler streams one model's heatmap for a scan.
func NewHeatmapImageHandler(svc ScanReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := scanID(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Scan id must be a positive integer", nil)
			return
		}
		modelID := chi.URLParam(r, "modelID")

		scan, err := svc.GetScan(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Scan not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		for _, o := range scan.Outcomes {
			if o.ModelID == modelID {
				serveImage(w, r, o.HeatmapPath)
				return
			}
		}
		response.Error(w, http.StatusNotFound, "NOT_FOUND",
			"No heatmap for that model on this scan", nil)
	}
}

func serveImage(w http.ResponseWriter, r *http.Request, path string) {
	if path == "" {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Image not stored", nil)
		return
	}
	if _, err := os.Stat(path); err != nil {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Image file is missing", nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}
