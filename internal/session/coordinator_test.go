package session

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/database/mock"
	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/liveness"
	"github.com/facegate/facegate/internal/recognize"
)

type stubVision struct {
	detections []recognize.FaceDetection
	detectErr  error
	embedding  []float32
	embedErr   error
	embedCalls int
}

func (s *stubVision) DetectFaces(ctx context.Context, imageData []byte) ([]recognize.FaceDetection, error) {
	return s.detections, s.detectErr
}

func (s *stubVision) ComputeEmbedding(ctx context.Context, imageData []byte, enforceDetection bool) ([]float32, error) {
	s.embedCalls++
	return s.embedding, s.embedErr
}

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

func newTestCoordinator(store *mock.MockStore, vision *stubVision) *Coordinator {
	cache := identity.NewCache(database.NewIdentityLoader(store), 2, time.Minute)
	return NewCoordinator(testConfig(), cache, identity.NewLinearMatcher(), vision, liveness.NewNeutralProvider("test"), store)
}

func frameJPEG(t *testing.T) []byte {
	t.Helper()
	data, err := recognize.EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 24, 24)))
	if err != nil {
		t.Fatalf("failed to encode test frame: %v", err)
	}
	return data
}

func singleDetection() []recognize.FaceDetection {
	return []recognize.FaceDetection{{BBox: []float64{2, 2, 18, 18}, DetScore: 0.9}}
}

func TestProcessFrameConfirmsAndMarks(t *testing.T) {
	store := mock.NewMockStore()
	store.AddStudent(database.Student{ID: 1, Name: "Alice", Code: "S1", Embedding: []float32{1, 0}, Dim: 2, IsActive: true})

	vision := &stubVision{detections: singleDetection(), embedding: []float32{1, 0}}
	c := newTestCoordinator(store, vision)
	sess := c.NewSession()
	frame := frameJPEG(t)

	for i := 1; i <= 2; i++ {
		report, err := c.ProcessFrame(context.Background(), sess, frame)
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		face := report.Detected[0]
		if face.Confirmed || face.Marked {
			t.Fatalf("frame %d: must not confirm before the required streak, got %+v", i, face)
		}
		if face.Name != "Alice" {
			t.Fatalf("frame %d: expected matched name Alice, got %q", i, face.Name)
		}
	}

	report, err := c.ProcessFrame(context.Background(), sess, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	face := report.Detected[0]
	if !face.Confirmed || !face.Marked {
		t.Fatalf("expected confirmation and mark on frame 3, got %+v", face)
	}
	if face.FramesConfirmed != 3 || face.FramesRequired != 3 {
		t.Errorf("unexpected streak counters: %d/%d", face.FramesConfirmed, face.FramesRequired)
	}

	// frame 4 stays confirmed but never marks again
	report, _ = c.ProcessFrame(context.Background(), sess, frame)
	face = report.Detected[0]
	if !face.Confirmed {
		t.Error("expected streak to stay confirmed")
	}
	if face.Marked {
		t.Error("attendance must not be marked twice in one session")
	}

	records, err := store.ListByDay(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one attendance record, got %d", len(records))
	}
}

func TestProcessFrameAlreadyRecordedToday(t *testing.T) {
	store := mock.NewMockStore()
	store.AddStudent(database.Student{ID: 1, Name: "Alice", Code: "S1", Embedding: []float32{1, 0}, Dim: 2, IsActive: true})
	if _, err := store.RecordAttendance(context.Background(), 1, 0.9, time.Now()); err != nil {
		t.Fatalf("failed to seed attendance: %v", err)
	}

	vision := &stubVision{detections: singleDetection(), embedding: []float32{1, 0}}
	c := newTestCoordinator(store, vision)
	sess := c.NewSession()
	frame := frameJPEG(t)

	var face FaceReport
	for i := 0; i < 3; i++ {
		report, err := c.ProcessFrame(context.Background(), sess, frame)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		face = report.Detected[0]
	}

	if !face.Confirmed {
		t.Error("expected confirmation")
	}
	if face.Marked {
		t.Error("already recorded today must report as not marked")
	}
}

func TestProcessFrameUnknownFaceResetsStreak(t *testing.T) {
	store := mock.NewMockStore()
	store.AddStudent(database.Student{ID: 1, Name: "Alice", Code: "S1", Embedding: []float32{1, 0}, Dim: 2, IsActive: true})

	vision := &stubVision{detections: singleDetection(), embedding: []float32{1, 0}}
	c := newTestCoordinator(store, vision)
	sess := c.NewSession()
	frame := frameJPEG(t)

	c.ProcessFrame(context.Background(), sess, frame)
	c.ProcessFrame(context.Background(), sess, frame)

	// an embedding nowhere near the enrolled one interrupts the streak
	vision.embedding = []float32{-1, 0}
	report, err := c.ProcessFrame(context.Background(), sess, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	face := report.Detected[0]
	if face.Name != unknownName {
		t.Errorf("expected unknown face, got %q", face.Name)
	}
	if face.FramesConfirmed != 0 {
		t.Errorf("expected streak cleared, got %d", face.FramesConfirmed)
	}

	// rebuilding the streak needs the full required count again
	vision.embedding = []float32{1, 0}
	c.ProcessFrame(context.Background(), sess, frame)
	report, _ = c.ProcessFrame(context.Background(), sess, frame)
	if report.Detected[0].Confirmed {
		t.Error("streak must restart from scratch after an unknown face")
	}
}

func TestProcessFrameInvalidImage(t *testing.T) {
	store := mock.NewMockStore()
	store.AddStudent(database.Student{ID: 1, Name: "Alice", Code: "S1", Embedding: []float32{1, 0}, Dim: 2, IsActive: true})

	c := newTestCoordinator(store, &stubVision{})
	sess := c.NewSession()

	if _, err := c.ProcessFrame(context.Background(), sess, []byte("not an image")); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

func TestProcessFrameNoFaces(t *testing.T) {
	store := mock.NewMockStore()
	store.AddStudent(database.Student{ID: 1, Name: "Alice", Code: "S1", Embedding: []float32{1, 0}, Dim: 2, IsActive: true})

	c := newTestCoordinator(store, &stubVision{})
	sess := c.NewSession()

	report, err := c.ProcessFrame(context.Background(), sess, frameJPEG(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Detected) != 0 {
		t.Errorf("expected empty result for a frame without faces, got %d", len(report.Detected))
	}
	if report.Liveness == nil {
		t.Error("expected liveness annotation on the frame report")
	}
}

func TestMarkAttendance(t *testing.T) {
	store := mock.NewMockStore()
	store.AddStudent(database.Student{ID: 1, Name: "Alice", Code: "S1", Embedding: []float32{1, 0}, Dim: 2, IsActive: true})

	vision := &stubVision{detections: singleDetection(), embedding: []float32{1, 0}}
	c := newTestCoordinator(store, vision)
	frame := frameJPEG(t)

	res, err := c.MarkAttendance(context.Background(), frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.AlreadyMarked {
		t.Fatalf("expected fresh mark, got %+v", res)
	}
	if res.StudentName != "Alice" {
		t.Errorf("expected student name Alice, got %q", res.StudentName)
	}

	res, err = c.MarkAttendance(context.Background(), frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || !res.AlreadyMarked {
		t.Fatalf("expected already-marked outcome, got %+v", res)
	}
}

func TestMarkAttendanceMultipleFaces(t *testing.T) {
	store := mock.NewMockStore()
	vision := &stubVision{detections: []recognize.FaceDetection{
		{BBox: []float64{0, 0, 10, 10}},
		{BBox: []float64{12, 0, 22, 10}},
	}}
	c := newTestCoordinator(store, vision)

	res, err := c.MarkAttendance(context.Background(), frameJPEG(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("multiple faces must not mark attendance")
	}
}

func TestMarkAttendanceNotRecognized(t *testing.T) {
	store := mock.NewMockStore()
	store.AddStudent(database.Student{ID: 1, Name: "Alice", Code: "S1", Embedding: []float32{1, 0}, Dim: 2, IsActive: true})

	vision := &stubVision{detections: singleDetection(), embedding: []float32{-1, 0}}
	c := newTestCoordinator(store, vision)

	res, err := c.MarkAttendance(context.Background(), frameJPEG(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("unrecognized face must not mark attendance")
	}
	if res.Distance < 1.9 {
		t.Errorf("expected diagnostic distance near 2, got %f", res.Distance)
	}
}

func TestMarkAttendanceNoEmbedding(t *testing.T) {
	store := mock.NewMockStore()
	vision := &stubVision{detections: singleDetection()}
	c := newTestCoordinator(store, vision)

	res, err := c.MarkAttendance(context.Background(), frameJPEG(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("missing embedding must not mark attendance")
	}
	// one direct attempt plus three rotated retries
	if vision.embedCalls != 4 {
		t.Errorf("expected 4 embedding attempts, got %d", vision.embedCalls)
	}
}
