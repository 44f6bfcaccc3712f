package liveness

import (
	"context"
	"errors"
	"testing"

	"github.com/facegate/facegate/internal/recognize"
)

type stubLandmarkSource struct {
	lm      *recognize.Landmarks
	err     error
	pingErr error
	calls   int
}

func (s *stubLandmarkSource) Landmarks(ctx context.Context, imageData []byte) (*recognize.Landmarks, error) {
	s.calls++
	return s.lm, s.err
}

func (s *stubLandmarkSource) Ping(ctx context.Context) error {
	return s.pingErr
}

func TestNeutralProviderVerdict(t *testing.T) {
	p := NewNeutralProvider("landmark service unreachable")

	r := p.CheckFrame(context.Background(), NewState(), []byte("frame"))
	if !r.IsLive {
		t.Error("neutral verdict must not block the pipeline")
	}
	if r.Confidence != 0.5 {
		t.Errorf("expected neutral confidence 0.5, got %f", r.Confidence)
	}

	batch := p.CheckBatch(context.Background(), NewState(), [][]byte{[]byte("a"), []byte("b")})
	if batch != r {
		t.Errorf("batch verdict should match frame verdict, got %+v", batch)
	}
}

func TestLandmarkProviderDegradesOnError(t *testing.T) {
	src := &stubLandmarkSource{err: errors.New("boom")}
	p := NewLandmarkProvider(NewAnalyzer(testLivenessConfig()), src)

	r := p.CheckFrame(context.Background(), NewState(), []byte("frame"))
	if !r.IsLive || r.Confidence != 0.5 {
		t.Errorf("landmark failure should degrade to the neutral verdict, got %+v", r)
	}
}

func TestLandmarkProviderRunsAnalysis(t *testing.T) {
	src := &stubLandmarkSource{lm: landmarksAt(0.3, recognize.Point{X: 0.5, Y: 0.5})}
	p := NewLandmarkProvider(NewAnalyzer(testLivenessConfig()), src)

	st := NewState()
	r := p.CheckFrame(context.Background(), st, []byte("not an image"))
	if r.IsLive {
		t.Error("open eyes without indicators should not pass")
	}
	if src.calls != 1 {
		t.Errorf("expected one landmark call, got %d", src.calls)
	}
}

func TestLandmarkProviderBatchAllFramesFail(t *testing.T) {
	src := &stubLandmarkSource{err: errors.New("boom")}
	p := NewLandmarkProvider(NewAnalyzer(testLivenessConfig()), src)

	r := p.CheckBatch(context.Background(), NewState(), [][]byte{[]byte("a"), []byte("b")})
	if !r.IsLive || r.Confidence != 0.5 {
		t.Errorf("expected neutral verdict when no frame yields landmarks, got %+v", r)
	}
}

func TestSelectProvider(t *testing.T) {
	cfg := testLivenessConfig()

	healthy := &stubLandmarkSource{}
	if _, ok := SelectProvider(context.Background(), cfg, healthy, true).(*LandmarkProvider); !ok {
		t.Error("expected the landmark provider when the service answers")
	}

	down := &stubLandmarkSource{pingErr: errors.New("connection refused")}
	if _, ok := SelectProvider(context.Background(), cfg, down, true).(*NeutralProvider); !ok {
		t.Error("expected the neutral fallback when the service is unreachable")
	}

	if _, ok := SelectProvider(context.Background(), cfg, healthy, false).(*NeutralProvider); !ok {
		t.Error("expected the neutral fallback when landmark analysis is disabled")
	}
}
