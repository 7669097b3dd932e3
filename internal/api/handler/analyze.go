package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/mkowalczyk/dermascan/internal/api/response"
	"github.com/mkowalczyk/dermascan/internal/imaging"
	"github.com/mkowalczyk/dermascan/internal/pipeline"
	"github.com/mkowalczyk/dermascan/pkg/models"
)

// maxUploadBytes caps one uploaded image; dermatoscope photos stay well
// under this.
const maxUploadBytes = 20 << 20

// Analyzer defines the interface the analyze handler depends on.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, opts pipeline.Options) (*models.Scan, error)
}

// analyzeOptions reads the optional crop_factor and auto_focus multipart
// fields. Absent fields keep the zero value: no crop, no auto focus.
func analyzeOptions(r *http.Request) (pipeline.Options, string) {
	var opts pipeline.Options

	if v := r.FormValue("crop_factor"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 0.5 {
			return opts, "crop_factor must be a number between 0 and 0.5"
		}
		opts.CropFactor = f
	}
	if v := r.FormValue("auto_focus"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, "auto_focus must be a boolean"
		}
		opts.AutoFocus = b
	}
	return opts, ""
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /api/v1/analyze.
// The image rides in the "image" field of a multipart form; crop_factor
// and auto_focus are optional sibling fields.
func NewAnalyzeHandler(svc Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		file, _, err := r.FormFile("image")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Multipart field 'image' is required", nil)
			return
		}
		defer file.Close()

		opts, msg := analyzeOptions(r)
		if msg != "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Could not read uploaded image", nil)
			return
		}

		scan, err := svc.Analyze(r.Context(), data, opts)
		if err != nil {
			switch {
			case errors.Is(err, imaging.ErrDecode):
				response.Error(w, http.StatusUnprocessableEntity, "IMAGE_PROCESSING_ERROR",
					"The uploaded file is not a decodable image", nil)
			case errors.Is(err, pipeline.ErrNoModelsLoaded):
				response.Error(w, http.StatusServiceUnavailable, "MODEL_NOT_LOADED",
					"No classification models are available", nil)
			case errors.Is(err, pipeline.ErrAllModelsFailed):
				response.Error(w, http.StatusUnprocessableEntity, "IMAGE_PROCESSING_ERROR",
					"No model could process this image", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Created(w, scan)
	}
}
