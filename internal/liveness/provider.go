package liveness

import (
	"context"
	"log"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/recognize"
)

// LandmarkSource provides facial geometry for a raw frame. Satisfied by
// the vision service client.
type LandmarkSource interface {
	Landmarks(ctx context.Context, imageData []byte) (*recognize.Landmarks, error)
	Ping(ctx context.Context) error
}

// Provider is the liveness strategy selected once at startup: either the
// full landmark analysis or a neutral fallback when the landmark
// collaborator is unavailable. Call sites never branch on availability.
type Provider interface {
	// CheckFrame scores one frame against the session's tracking state.
	CheckFrame(ctx context.Context, st *State, imageData []byte) Result
	// CheckBatch scores a burst of frames on fresh state.
	CheckBatch(ctx context.Context, st *State, frames [][]byte) Result
}

// LandmarkProvider runs the full per-frame analysis against the landmark
// collaborator.
type LandmarkProvider struct {
	analyzer *Analyzer
	source   LandmarkSource
}

// NewLandmarkProvider creates the full-analysis provider.
func NewLandmarkProvider(analyzer *Analyzer, source LandmarkSource) *LandmarkProvider {
	return &LandmarkProvider{analyzer: analyzer, source: source}
}

// CheckFrame fetches landmarks and runs the per-frame analysis. A failed
// landmark call degrades to the neutral verdict for that frame; it never
// fails the pipeline.
func (p *LandmarkProvider) CheckFrame(ctx context.Context, st *State, imageData []byte) Result {
	lm, err := p.source.Landmarks(ctx, imageData)
	if err != nil {
		return neutralResult("landmark service unavailable")
	}

	img, err := recognize.DecodeImage(imageData)
	if err != nil {
		img = nil // texture contributes nothing for an undecodable frame
	}

	return p.analyzer.ProcessFrame(st, lm, img)
}

// CheckBatch runs the multi-frame aggregate over a frame burst.
func (p *LandmarkProvider) CheckBatch(ctx context.Context, st *State, frames [][]byte) Result {
	inputs := make([]frameInput, 0, len(frames))
	for _, data := range frames {
		lm, err := p.source.Landmarks(ctx, data)
		if err != nil {
			continue
		}
		img, err := recognize.DecodeImage(data)
		if err != nil {
			img = nil
		}
		inputs = append(inputs, frameInput{landmarks: lm, image: img})
	}

	if len(inputs) == 0 && len(frames) > 0 {
		return neutralResult("landmark service unavailable")
	}
	return p.analyzer.processBatch(st, inputs)
}

// NeutralProvider is the fallback used when no landmark collaborator is
// available. It returns an indeterminate-but-live verdict with low
// confidence so the rest of the pipeline keeps working.
type NeutralProvider struct {
	reason string
}

// NewNeutralProvider creates the fallback provider with the given reason.
func NewNeutralProvider(reason string) *NeutralProvider {
	return &NeutralProvider{reason: reason}
}

func neutralResult(reason string) Result {
	return Result{
		IsLive:     true,
		Confidence: 0.5,
		Reason:     "liveness detection unavailable (" + reason + ")",
	}
}

// CheckFrame returns the fixed neutral verdict.
func (p *NeutralProvider) CheckFrame(ctx context.Context, st *State, imageData []byte) Result {
	return neutralResult(p.reason)
}

// CheckBatch returns the fixed neutral verdict.
func (p *NeutralProvider) CheckBatch(ctx context.Context, st *State, frames [][]byte) Result {
	return neutralResult(p.reason)
}

// SelectProvider picks the liveness strategy once at startup: the full
// landmark analysis when the collaborator answers, otherwise the neutral
// fallback.
func SelectProvider(ctx context.Context, cfg config.LivenessConfig, source LandmarkSource, landmarksEnabled bool) Provider {
	if !landmarksEnabled {
		log.Println("liveness: landmark analysis disabled, using neutral fallback")
		return NewNeutralProvider("disabled by configuration")
	}

	if err := source.Ping(ctx); err != nil {
		log.Printf("liveness: landmark service unreachable, using neutral fallback: %v", err)
		return NewNeutralProvider("landmark service unreachable")
	}

	return NewLandmarkProvider(NewAnalyzer(cfg), source)
}
