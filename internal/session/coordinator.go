// Package session drives the per-frame recognition pipeline for live
// attendance streams and single-shot marking.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/confirm"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/liveness"
	"github.com/facegate/facegate/internal/recognize"
)

// cropMargin is the percentage margin added around a detector bbox
// before the crop is sent to the embedding extractor.
const cropMargin = 0.35

const unknownName = "Unknown"

// ErrInvalidImage reports a frame that could not be decoded. The frame
// is skipped without touching any session state.
var ErrInvalidImage = errors.New("invalid image data")

// FaceSource is the subset of the vision service used by the pipeline.
type FaceSource interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]recognize.FaceDetection, error)
	ComputeEmbedding(ctx context.Context, imageData []byte, enforceDetection bool) ([]float32, error)
}

// FaceReport is the per-face entry of a frame result.
type FaceReport struct {
	Name            string                 `json:"name"`
	Confidence      float64                `json:"confidence"`
	Marked          bool                   `json:"marked"`
	Confirmed       bool                   `json:"confirmed"`
	BBox            *recognize.BoundingBox `json:"bbox,omitempty"`
	FramesConfirmed int                    `json:"frames_confirmed"`
	FramesRequired  int                    `json:"frames_required"`
}

// FrameReport is the full result for one processed frame.
type FrameReport struct {
	Detected []FaceReport     `json:"detected"`
	Liveness *liveness.Result `json:"liveness,omitempty"`
}

// MarkResult is the outcome of a single-shot attendance mark.
type MarkResult struct {
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
	StudentName   string  `json:"student_name,omitempty"`
	AlreadyMarked bool    `json:"already_marked,omitempty"`
	Confidence    float64 `json:"match_confidence,omitempty"`
	Distance      float64 `json:"distance,omitempty"`
}

// Session holds the mutable per-stream state. Frames of one session are
// processed strictly in arrival order, never concurrently, so the state
// needs no locking.
type Session struct {
	ID        string
	StartedAt time.Time
	tracker   *confirm.Tracker
	liveness  *liveness.State
}

// Coordinator wires the cache, matcher, vision service, liveness
// provider and attendance store into the frame pipeline. It holds no
// per-session state and is safe for concurrent sessions.
type Coordinator struct {
	cfg     *config.Config
	cache   *identity.Cache
	matcher identity.Matcher
	vision  FaceSource
	live    liveness.Provider
	store   database.AttendanceStore
}

// NewCoordinator creates the pipeline coordinator.
func NewCoordinator(cfg *config.Config, cache *identity.Cache, matcher identity.Matcher, vision FaceSource, live liveness.Provider, store database.AttendanceStore) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		cache:   cache,
		matcher: matcher,
		vision:  vision,
		live:    live,
		store:   store,
	}
}

// NewSession creates fresh per-stream state.
func (c *Coordinator) NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		tracker:   confirm.NewTracker(c.cfg.Match.RequiredFrames),
		liveness:  liveness.NewState(),
	}
}

// ProcessFrame runs one frame through detection, matching, confirmation
// and the idempotent attendance commit. The cache is refreshed lazily
// when stale before the frame is processed.
func (c *Coordinator) ProcessFrame(ctx context.Context, sess *Session, imageData []byte) (*FrameReport, error) {
	snap, err := c.cache.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}

	img, err := recognize.DecodeImage(imageData)
	if err != nil {
		return nil, ErrInvalidImage
	}

	detections, err := c.vision.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	report := &FrameReport{Detected: []FaceReport{}}
	if c.live != nil {
		lr := c.live.CheckFrame(ctx, sess.liveness, imageData)
		report.Liveness = &lr
	}

	for _, det := range detections {
		report.Detected = append(report.Detected, c.processFace(ctx, sess, snap, img, imageData, det))
	}
	return report, nil
}

// processFace matches one detected face and advances the session's
// confirmation streak.
func (c *Coordinator) processFace(ctx context.Context, sess *Session, snap *identity.Snapshot, img image.Image, imageData []byte, det recognize.FaceDetection) FaceReport {
	bbox := det.ToBoundingBox()
	rep := FaceReport{
		Name:           unknownName,
		BBox:           &bbox,
		FramesRequired: c.cfg.Match.RequiredFrames,
	}

	embedding := c.embedFace(ctx, img, imageData, det)
	if embedding == nil || snap.Len() == 0 {
		sess.tracker.Observe(0, false)
		return rep
	}

	match := c.matcher.FindBestMatch(embedding, snap, c.cfg.Match.Threshold)
	rep.Confidence = round3(match.Confidence())
	if !match.Matched {
		sess.tracker.Observe(0, false)
		return rep
	}

	if ident, ok := snap.Get(match.IdentityID); ok {
		rep.Name = ident.DisplayName
	}

	d := sess.tracker.Observe(match.IdentityID, true)
	rep.Confirmed = d.Confirmed
	rep.FramesConfirmed = d.Streak

	if d.Commit {
		outcome, err := c.store.RecordAttendance(ctx, match.IdentityID, match.Confidence(), time.Now())
		switch {
		case err != nil:
			// the identity stays in the committed set, no retry this session
			log.Printf("session %s: record attendance for %d: %v", sess.ID, match.IdentityID, err)
		case outcome == database.OutcomeCreated:
			rep.Marked = true
		}
	}
	return rep
}

// embedFace extracts an embedding from the cropped face, falling back to
// the full frame when the crop yields nothing.
func (c *Coordinator) embedFace(ctx context.Context, img image.Image, imageData []byte, det recognize.FaceDetection) []float32 {
	crop := recognize.CropFace(img, det, cropMargin)
	if cropData, err := recognize.EncodeJPEG(crop); err == nil {
		if embedding, err := c.vision.ComputeEmbedding(ctx, cropData, false); err == nil && embedding != nil {
			return embedding
		}
	}

	embedding, err := c.vision.ComputeEmbedding(ctx, imageData, false)
	if err != nil {
		return nil
	}
	return embedding
}

// MarkAttendance handles a single-shot mark from one still image. It
// requires exactly one face in frame and uses the looser single-shot
// threshold since no multi-frame confirmation backs the decision up.
func (c *Coordinator) MarkAttendance(ctx context.Context, imageData []byte) (*MarkResult, error) {
	img, err := recognize.DecodeImage(imageData)
	if err != nil {
		return nil, ErrInvalidImage
	}

	detections, err := c.vision.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	if len(detections) == 0 {
		return &MarkResult{Message: "No face detected"}, nil
	}
	if len(detections) > 1 {
		return &MarkResult{Message: "Multiple faces detected. Please show only one face."}, nil
	}

	embedding, err := c.vision.ComputeEmbedding(ctx, imageData, false)
	if err != nil {
		return nil, fmt.Errorf("compute embedding: %w", err)
	}
	if embedding == nil {
		embedding = c.embedRotated(ctx, img)
	}
	if embedding == nil {
		return &MarkResult{Message: "Could not generate face embedding. Please try again."}, nil
	}

	snap, err := c.cache.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	if snap.Len() == 0 {
		return &MarkResult{Message: "No students with face data registered"}, nil
	}

	match := c.matcher.FindBestMatch(embedding, snap, c.cfg.Match.MarkThreshold)
	if !match.Matched {
		res := &MarkResult{Message: "Face not recognized"}
		if !math.IsInf(match.Distance, 1) {
			res.Distance = round3(match.Distance)
		}
		return res, nil
	}

	ident, _ := snap.Get(match.IdentityID)

	outcome, err := c.store.RecordAttendance(ctx, match.IdentityID, match.Confidence(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("record attendance: %w", err)
	}

	res := &MarkResult{
		Success:     true,
		StudentName: ident.DisplayName,
		Confidence:  round3(match.Confidence()),
	}
	if outcome == database.OutcomeAlreadyRecorded {
		res.AlreadyMarked = true
		res.Message = fmt.Sprintf("Attendance already marked for %s today", ident.DisplayName)
	} else {
		res.Message = fmt.Sprintf("Attendance marked for %s", ident.DisplayName)
	}
	return res, nil
}

// embedRotated retries embedding extraction with rotated copies, the
// frame may come in sideways from mobile cameras.
func (c *Coordinator) embedRotated(ctx context.Context, img image.Image) []float32 {
	rotations := []func(image.Image) image.Image{
		recognize.Rotate90,
		recognize.Rotate180,
		recognize.Rotate270,
	}

	for _, rotate := range rotations {
		data, err := recognize.EncodeJPEG(rotate(img))
		if err != nil {
			continue
		}
		embedding, err := c.vision.ComputeEmbedding(ctx, data, false)
		if err == nil && embedding != nil {
			return embedding
		}
	}
	return nil
}

// CheckLiveness runs the batch liveness analysis over a burst of frames
// on fresh state.
func (c *Coordinator) CheckLiveness(ctx context.Context, frames [][]byte) liveness.Result {
	return c.live.CheckBatch(ctx, liveness.NewState(), frames)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
