package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/mkowalczyk/dermascan/internal/api/middleware"
	"github.com/mkowalczyk/dermascan/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	AnalyzeHandler http.HandlerFunc

	ListHistoryHandler   http.HandlerFunc
	GetScanHandler       http.HandlerFunc
	DeleteScanHandler    http.HandlerFunc
	OriginalImageHandler http.HandlerFunc
	HeatmapImageHandler  http.HandlerFunc

	CreatePatientHandler http.HandlerFunc
	ListPatientsHandler  http.HandlerFunc
	GetPatientHandler    http.HandlerFunc
	UpdatePatientHandler http.HandlerFunc
	DeletePatientHandler http.HandlerFunc

	CreateMarkerHandler http.HandlerFunc
	ListMarkersHandler  http.HandlerFunc
	GetMarkerHandler    http.HandlerFunc
	UpdateMarkerHandler http.HandlerFunc
	DeleteMarkerHandler http.HandlerFunc

	CameraSendHandler   http.HandlerFunc
	CameraViewHandler   http.HandlerFunc
	CameraStatusHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Websocket relay; long-lived connections stay outside the rate limiter.
	r.Get("/ws/camera/send", orNotImplemented(deps.CameraSendHandler))
	r.Get("/ws/camera/view", orNotImplemented(deps.CameraViewHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/analyze", orNotImplemented(deps.AnalyzeHandler))

		r.Get("/api/v1/history", orNotImplemented(deps.ListHistoryHandler))
		r.Get("/api/v1/history/{scanID}", orNotImplemented(deps.GetScanHandler))
		r.Delete("/api/v1/history/{scanID}", orNotImplemented(deps.DeleteScanHandler))
		r.Get("/api/v1/history/{scanID}/image/original", orNotImplemented(deps.OriginalImageHandler))
		r.Get("/api/v1/history/{scanID}/image/heatmap/{modelID}", orNotImplemented(deps.HeatmapImageHandler))

		r.Post("/api/v1/patients", orNotImplemented(deps.CreatePatientHandler))
		r.Get("/api/v1/patients", orNotImplemented(deps.ListPatientsHandler))
		r.Get("/api/v1/patients/{patientID}", orNotImplemented(deps.GetPatientHandler))
		r.Patch("/api/v1/patients/{patientID}", orNotImplemented(deps.UpdatePatientHandler))
		r.Delete("/api/v1/patients/{patientID}", orNotImplemented(deps.DeletePatientHandler))

		r.Post("/api/v1/bodymap/markers", orNotImplemented(deps.CreateMarkerHandler))
		r.Get("/api/v1/bodymap/markers", orNotImplemented(deps.ListMarkersHandler))
		r.Get("/api/v1/bodymap/markers/{markerID}", orNotImplemented(deps.GetMarkerHandler))
		r.Patch("/api/v1/bodymap/markers/{markerID}", orNotImplemented(deps.UpdateMarkerHandler))
		r.Delete("/api/v1/bodymap/markers/{markerID}", orNotImplemented(deps.DeleteMarkerHandler))

		r.Get("/api/v1/camera/status", orNotImplemented(deps.CameraStatusHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
