package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/database/mock"
	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/liveness"
	"github.com/facegate/facegate/internal/recognize"
	"github.com/facegate/facegate/internal/session"
)

// testConfig creates a minimal config for testing.
func testConfig() *config.Config {
	return &config.Config{
		Vision: config.VisionConfig{Dim: 2},
		Match: config.MatchConfig{
			Threshold:      0.45,
			MarkThreshold:  0.6,
			RequiredFrames: 3,
			CacheRefresh:   time.Minute,
		},
	}
}

// stubVision fakes the external vision service.
type stubVision struct {
	detections []recognize.FaceDetection
	detectErr  error
	embedding  []float32
	embedErr   error
}

func (s *stubVision) DetectFaces(ctx context.Context, imageData []byte) ([]recognize.FaceDetection, error) {
	return s.detections, s.detectErr
}

func (s *stubVision) ComputeEmbedding(ctx context.Context, imageData []byte, enforceDetection bool) ([]float32, error) {
	return s.embedding, s.embedErr
}

func singleDetection() []recognize.FaceDetection {
	return []recognize.FaceDetection{{BBox: []float64{2, 2, 18, 18}, DetScore: 0.9}}
}

// testPipeline builds the cache and coordinator over a mock store.
func testPipeline(store *mock.MockStore, vision *stubVision) (*session.Coordinator, *identity.Cache) {
	cfg := testConfig()
	cache := identity.NewCache(database.NewIdentityLoader(store), cfg.Vision.Dim, cfg.Match.CacheRefresh)
	coordinator := session.NewCoordinator(cfg, cache, identity.NewLinearMatcher(), vision, liveness.NewNeutralProvider("test"), store)
	return coordinator, cache
}

// frameJPEG encodes a small blank frame for upload tests.
func frameJPEG(t *testing.T) []byte {
	t.Helper()
	data, err := recognize.EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 24, 24)))
	if err != nil {
		t.Fatalf("failed to encode test frame: %v", err)
	}
	return data
}

// multipartRequest builds a multipart request with form fields and one
// or more files under the given field name.
func multipartRequest(t *testing.T, path string, fields map[string]string, fileField string, files ...[]byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	for i, data := range files {
		part, err := writer.CreateFormFile(fileField, "frame.jpg")
		if err != nil {
			t.Fatalf("failed to create form file %d: %v", i, err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("failed to write form file %d: %v", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message.
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
