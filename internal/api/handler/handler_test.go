package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkowalczyk/dermascan/internal/api/handler"
	"github.com/mkowalczyk/dermascan/internal/catalog"
	"github.com/mkowalczyk/dermascan/internal/imaging"
	"github.com/mkowalczyk/dermascan/internal/pipeline"
	"github.com/mkowalczyk/dermascan/internal/relay"
	"github.com/mkowalczyk/dermascan/internal/store"
	"github.com/mkowalczyk/dermascan/pkg/models"
)

// --- fixtures ---

func sampleScan() *models.Scan {
	return &models.Scan{
		ID:                  7,
		CreatedAt:           time.Now().UTC(),
		ConsensusClass:      "melanoma",
		ConsensusRisk:       catalog.RiskUrgent,
		ConsensusConfidence: 0.82,
		Outcomes: []models.ModelOutcome{{
			ModelID:    "resnet50",
			ModelLabel: "ResNet-50",
			TopK: []models.ClassPrediction{
				{ClassKey: "melanoma", Confidence: 0.82, RiskTier: catalog.RiskUrgent},
			},
		}},
	}
}

func pngUpload(t *testing.T) (*bytes.Buffer, string) {
	return pngUploadFields(t, nil)
}

func pngUploadFields(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})

	var body bytes.Buffer
	mpw := multipart.NewWriter(&body)
	part, err := mpw.CreateFormFile("image", "lesion.png")
	require.NoError(t, err)
	require.NoError(t, png.Encode(part, img))
	for k, v := range fields {
		require.NoError(t, mpw.WriteField(k, v))
	}
	require.NoError(t, mpw.Close())
	return &body, mpw.FormDataContentType()
}

func dataBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data, ok := env["data"]
	require.True(t, ok, "missing data envelope: %s", rec.Body.String())
	m, _ := data.(map[string]any)
	return m
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	errObj, ok := env["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %s", rec.Body.String())
	return errObj["code"].(string)
}

// --- mocks ---

type mockAnalyzer struct {
	scan    *models.Scan
	err     error
	called  bool
	gotOpts pipeline.Options
}

func (m *mockAnalyzer) Analyze(_ context.Context, _ []byte, opts pipeline.Options) (*models.Scan, error) {
	m.called = true
	m.gotOpts = opts
	return m.scan, m.err
}

type mockScanReader struct {
	scan *models.Scan
	err  error
}

func (m *mockScanReader) GetScan(_ context.Context, _ int64) (*models.Scan, error) {
	return m.scan, m.err
}

func (m *mockScanReader) History(_ context.Context, _, _ int) ([]*models.Scan, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	return []*models.Scan{m.scan}, 1, nil
}

func (m *mockScanReader) DeleteScan(_ context.Context, _ int64) error { return m.err }

type mockPatientStore struct {
	patient *models.Patient
	markers []*models.BodyMarker
	err     error
}

func (m *mockPatientStore) CreatePatient(_ context.Context, p *models.Patient) error {
	p.ID = 1
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	return m.err
}

func (m *mockPatientStore) GetPatient(_ context.Context, _ int64) (*models.Patient, error) {
	return m.patient, m.err
}

func (m *mockPatientStore) ListPatients(_ context.Context) ([]*models.Patient, error) {
	if m.patient == nil {
		return nil, m.err
	}
	return []*models.Patient{m.patient}, m.err
}

func (m *mockPatientStore) UpdatePatient(_ context.Context, _ int64, _ store.PatientUpdate) (*models.Patient, error) {
	return m.patient, m.err
}

func (m *mockPatientStore) DeletePatient(_ context.Context, _ int64) error { return m.err }

func (m *mockPatientStore) CreateMarker(_ context.Context, marker *models.BodyMarker) error {
	marker.ID = 10
	return nil
}

func (m *mockPatientStore) GetMarker(_ context.Context, _ int64) (*models.BodyMarker, error) {
	if len(m.markers) == 0 {
		return nil, store.ErrNotFound
	}
	return m.markers[0], nil
}

func (m *mockPatientStore) ListMarkers(_ context.Context, _ int64) ([]*models.BodyMarker, error) {
	return m.markers, nil
}

func (m *mockPatientStore) UpdateMarker(_ context.Context, _ int64, _ store.MarkerUpdate) (*models.BodyMarker, error) {
	if len(m.markers) == 0 {
		return nil, store.ErrNotFound
	}
	return m.markers[0], nil
}

func (m *mockPatientStore) DeleteMarker(_ context.Context, _ int64) error {
	if len(m.markers) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Analyze ---

func TestAnalyze_Created(t *testing.T) {
	h := handler.NewAnalyzeHandler(&mockAnalyzer{scan: sampleScan()})

	body, contentType := pngUpload(t)
	req := httptest.NewRequest("POST", "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := dataBody(t, rec)
	assert.Equal(t, "melanoma", data["consensus_class"])
	assert.EqualValues(t, 7, data["id"])
}

func TestAnalyze_MissingImageField(t *testing.T) {
	h := handler.NewAnalyzeHandler(&mockAnalyzer{scan: sampleScan()})

	req := httptest.NewRequest("POST", "/api/v1/analyze", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, rec))
}

func TestAnalyze_UndecodableImage(t *testing.T) {
	h := handler.NewAnalyzeHandler(&mockAnalyzer{err: imaging.ErrDecode})

	body, contentType := pngUpload(t)
	req := httptest.NewRequest("POST", "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "IMAGE_PROCESSING_ERROR", errCode(t, rec))
}

func TestAnalyze_NoModels(t *testing.T) {
	h := handler.NewAnalyzeHandler(&mockAnalyzer{err: pipeline.ErrNoModelsLoaded})

	body, contentType := pngUpload(t)
	req := httptest.NewRequest("POST", "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "MODEL_NOT_LOADED", errCode(t, rec))
}

func TestAnalyze_AllModelsFailed(t *testing.T) {
	h := handler.NewAnalyzeHandler(&mockAnalyzer{err: pipeline.ErrAllModelsFailed})

	body, contentType := pngUpload(t)
	req := httptest.NewRequest("POST", "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyze_DefaultOptions(t *testing.T) {
	m := &mockAnalyzer{scan: sampleScan()}
	h := handler.NewAnalyzeHandler(m)

	body, contentType := pngUpload(t)
	req := httptest.NewRequest("POST", "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, pipeline.Options{}, m.gotOpts)
}

func TestAnalyze_ForwardsFormOptions(t *testing.T) {
	m := &mockAnalyzer{scan: sampleScan()}
	h := handler.NewAnalyzeHandler(m)

	body, contentType := pngUploadFields(t, map[string]string{
		"crop_factor": "0.25",
		"auto_focus":  "true",
	})
	req := httptest.NewRequest("POST", "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.InDelta(t, 0.25, m.gotOpts.CropFactor, 0.0001)
	assert.True(t, m.gotOpts.AutoFocus)
}

func TestAnalyze_CropFactorUpperBoundInclusive(t *testing.T) {
	m := &mockAnalyzer{scan: sampleScan()}
	h := handler.NewAnalyzeHandler(m)

	body, contentType := pngUploadFields(t, map[string]string{"crop_factor": "0.5"})
	req := httptest.NewRequest("POST", "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.InDelta(t, 0.5, m.gotOpts.CropFactor, 0.0001)
}

func TestAnalyze_CropFactorOutOfRange(t *testing.T) {
	m := &mockAnalyzer{scan: sampleScan()}
	h := handler.NewAnalyzeHandler(m)

	body, contentType := pngUploadFields(t, map[string]string{"crop_factor": "0.6"})
	req := httptest.NewRequest("POST", "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, rec))
	assert.False(t, m.called)
}

func TestAnalyze_BadAutoFocus(t *testing.T) {
	m := &mockAnalyzer{scan: sampleScan()}
	h := handler.NewAnalyzeHandler(m)

	body, contentType := pngUploadFields(t, map[string]string{"auto_focus": "maybe"})
	req := httptest.NewRequest("POST", "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, m.called)
}

// --- History ---

func historyRouter(svc handler.ScanReader) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/history", handler.NewListHistoryHandler(svc))
	r.Get("/api/v1/history/{scanID}", handler.NewGetScanHandler(svc))
	r.Delete("/api/v1/history/{scanID}", handler.NewDeleteScanHandler(svc))
	r.Get("/api/v1/history/{scanID}/image/original", handler.NewOriginalImageHandler(svc))
	r.Get("/api/v1/history/{scanID}/image/heatmap/{modelID}", handler.NewHeatmapImageHandler(svc))
	return r
}

func TestListHistory(t *testing.T) {
	router := historyRouter(&mockScanReader{scan: sampleScan()})

	req := httptest.NewRequest("GET", "/api/v1/history?page=1&limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data []map[string]any `json:"data"`
		Meta map[string]any   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Len(t, env.Data, 1)
	assert.EqualValues(t, 1, env.Meta["total"])
	assert.Equal(t, false, env.Meta["has_next"])
}

func TestGetScan_OK(t *testing.T) {
	router := historyRouter(&mockScanReader{scan: sampleScan()})

	req := httptest.NewRequest("GET", "/api/v1/history/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataBody(t, rec)
	assert.Equal(t, "melanoma", data["consensus_class"])
	results, ok := data["model_results"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 1)
}

func TestGetScan_NotFound(t *testing.T) {
	router := historyRouter(&mockScanReader{err: store.ErrNotFound})

	req := httptest.NewRequest("GET", "/api/v1/history/99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, rec))
}

func TestGetScan_BadID(t *testing.T) {
	router := historyRouter(&mockScanReader{scan: sampleScan()})

	req := httptest.NewRequest("GET", "/api/v1/history/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteScan_OK(t *testing.T) {
	router := historyRouter(&mockScanReader{scan: sampleScan()})

	req := httptest.NewRequest("DELETE", "/api/v1/history/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOriginalImage_Streams(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "orig.png")
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(imgPath, buf.Bytes(), 0o644))

	scan := sampleScan()
	scan.OriginalImagePath = imgPath
	router := historyRouter(&mockScanReader{scan: scan})

	req := httptest.NewRequest("GET", "/api/v1/history/7/image/original", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, buf.Bytes(), rec.Body.Bytes())
}

func TestHeatmapImage_UnknownModel(t *testing.T) {
	router := historyRouter(&mockScanReader{scan: sampleScan()})

	req := httptest.NewRequest("GET", "/api/v1/history/7/image/heatmap/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Patients ---

func patientRouter(st *mockPatientStore) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/patients", handler.NewCreatePatientHandler(st))
	r.Get("/api/v1/patients", handler.NewListPatientsHandler(st))
	r.Get("/api/v1/patients/{patientID}", handler.NewGetPatientHandler(st))
	r.Patch("/api/v1/patients/{patientID}", handler.NewUpdatePatientHandler(st))
	r.Delete("/api/v1/patients/{patientID}", handler.NewDeletePatientHandler(st))
	return r
}

func TestCreatePatient_OK(t *testing.T) {
	router := patientRouter(&mockPatientStore{})

	req := httptest.NewRequest("POST", "/api/v1/patients",
		bytes.NewReader([]byte(`{"name":"Jan Kowalski"}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := dataBody(t, rec)
	assert.Equal(t, "Jan Kowalski", data["name"])
	assert.EqualValues(t, 1, data["id"])
}

func TestCreatePatient_MissingName(t *testing.T) {
	router := patientRouter(&mockPatientStore{})

	req := httptest.NewRequest("POST", "/api/v1/patients",
		bytes.NewReader([]byte(`{"name":"   "}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, rec))
}

func TestGetPatient_NotFound(t *testing.T) {
	router := patientRouter(&mockPatientStore{err: store.ErrNotFound})

	req := httptest.NewRequest("GET", "/api/v1/patients/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePatient_NothingToUpdate(t *testing.T) {
	router := patientRouter(&mockPatientStore{patient: &models.Patient{ID: 5, Name: "A"}})

	req := httptest.NewRequest("PATCH", "/api/v1/patients/5", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeletePatient_OK(t *testing.T) {
	router := patientRouter(&mockPatientStore{patient: &models.Patient{ID: 5, Name: "A"}})

	req := httptest.NewRequest("DELETE", "/api/v1/patients/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// --- Body map markers ---

func markerRouter(st *mockPatientStore) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/bodymap/markers", handler.NewCreateMarkerHandler(st))
	r.Get("/api/v1/bodymap/markers", handler.NewListMarkersHandler(st))
	r.Get("/api/v1/bodymap/markers/{markerID}", handler.NewGetMarkerHandler(st))
	r.Patch("/api/v1/bodymap/markers/{markerID}", handler.NewUpdateMarkerHandler(st))
	r.Delete("/api/v1/bodymap/markers/{markerID}", handler.NewDeleteMarkerHandler(st))
	return r
}

func TestCreateMarker_OK(t *testing.T) {
	router := markerRouter(&mockPatientStore{patient: &models.Patient{ID: 3, Name: "P"}})

	body := `{"patient_id":3,"x":0.4,"y":0.6,"view":"front","label":"mole on arm"}`
	req := httptest.NewRequest("POST", "/api/v1/bodymap/markers", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := dataBody(t, rec)
	assert.EqualValues(t, 10, data["id"])
	assert.Equal(t, "front", data["view"])
}

func TestCreateMarker_CoordinatesOutOfRange(t *testing.T) {
	router := markerRouter(&mockPatientStore{patient: &models.Patient{ID: 3, Name: "P"}})

	body := `{"patient_id":3,"x":1.4,"y":0.6,"view":"front","label":"x"}`
	req := httptest.NewRequest("POST", "/api/v1/bodymap/markers", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMarker_BadView(t *testing.T) {
	router := markerRouter(&mockPatientStore{patient: &models.Patient{ID: 3, Name: "P"}})

	body := `{"patient_id":3,"x":0.4,"y":0.6,"view":"side","label":"x"}`
	req := httptest.NewRequest("POST", "/api/v1/bodymap/markers", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMarker_UnknownPatient(t *testing.T) {
	router := markerRouter(&mockPatientStore{err: store.ErrNotFound})

	body := `{"patient_id":99,"x":0.4,"y":0.6,"view":"front","label":"x"}`
	req := httptest.NewRequest("POST", "/api/v1/bodymap/markers", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMarkers_RequiresPatientID(t *testing.T) {
	router := markerRouter(&mockPatientStore{patient: &models.Patient{ID: 3, Name: "P"}})

	req := httptest.NewRequest("GET", "/api/v1/bodymap/markers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMarkers_Empty(t *testing.T) {
	router := markerRouter(&mockPatientStore{patient: &models.Patient{ID: 3, Name: "P"}})

	req := httptest.NewRequest("GET", "/api/v1/bodymap/markers?patient_id=3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data []any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotNil(t, env.Data)
	assert.Empty(t, env.Data)
}

func TestGetMarker_OK(t *testing.T) {
	marker := &models.BodyMarker{ID: 10, PatientID: 3, X: 0.4, Y: 0.6, View: "front", Label: "mole on arm"}
	router := markerRouter(&mockPatientStore{markers: []*models.BodyMarker{marker}})

	req := httptest.NewRequest("GET", "/api/v1/bodymap/markers/10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataBody(t, rec)
	assert.EqualValues(t, 10, data["id"])
	assert.Equal(t, "mole on arm", data["label"])
}

func TestGetMarker_NotFound(t *testing.T) {
	router := markerRouter(&mockPatientStore{})

	req := httptest.NewRequest("GET", "/api/v1/bodymap/markers/44", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, rec))
}

func TestDeleteMarker_NotFound(t *testing.T) {
	router := markerRouter(&mockPatientStore{})

	req := httptest.NewRequest("DELETE", "/api/v1/bodymap/markers/44", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Camera status ---

func TestCameraStatus(t *testing.T) {
	b := relay.NewBroadcaster()
	h := handler.NewCameraStatusHandler(b)

	req := httptest.NewRequest("GET", "/api/v1/camera/status", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataBody(t, rec)
	assert.Equal(t, false, data["sender_connected"])
	assert.EqualValues(t, 0, data["viewers"])
}
