package liveness

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/recognize"
)

const (
	// historyCap bounds the rolling windows, roughly one second at 30fps.
	historyCap = 30

	// movementMinSamples is how many positions must be collected before
	// movement can be judged.
	movementMinSamples = 10

	// defaultOpenEAR is returned when the horizontal eye distance
	// degenerates to zero.
	defaultOpenEAR = 0.3
)

// Result of a liveness check for one frame or one batch.
type Result struct {
	IsLive           bool    `json:"is_live"`
	Confidence       float64 `json:"confidence"`
	Reason           string  `json:"reason"`
	BlinkDetected    bool    `json:"blink_detected"`
	MovementDetected bool    `json:"movement_detected"`
	TextureScore     float64 `json:"texture_score"`
}

// State is the per-session tracking memory: rolling position and EAR
// windows, the current closed-eye run and the blink counter. It is reset
// at session start and mutated once per processed frame.
type State struct {
	positions       []recognize.Point
	earHistory      []float64
	closedEyeFrames int
	blinkCount      int
}

// NewState creates empty tracking state for a new session.
func NewState() *State {
	return &State{
		positions:  make([]recognize.Point, 0, historyCap),
		earHistory: make([]float64, 0, historyCap),
	}
}

// Reset clears the tracking state.
func (s *State) Reset() {
	s.positions = s.positions[:0]
	s.earHistory = s.earHistory[:0]
	s.closedEyeFrames = 0
	s.blinkCount = 0
}

// BlinkCount returns the number of blinks observed since the last reset.
func (s *State) BlinkCount() int {
	return s.blinkCount
}

// pushPoint appends to a rolling window, evicting the oldest sample
// once the capacity is reached.
func pushPoint(window []recognize.Point, p recognize.Point) []recognize.Point {
	if len(window) == historyCap {
		copy(window, window[1:])
		window = window[:historyCap-1]
	}
	return append(window, p)
}

func pushFloat(window []float64, v float64) []float64 {
	if len(window) == historyCap {
		copy(window, window[1:])
		window = window[:historyCap-1]
	}
	return append(window, v)
}

// Analyzer scores liveness from landmark geometry and image texture.
// It holds only configuration; all mutable tracking lives in State.
type Analyzer struct {
	cfg config.LivenessConfig
}

// NewAnalyzer creates an analyzer with the given tuning.
func NewAnalyzer(cfg config.LivenessConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// eyeAspectRatio computes EAR = (|p2-p6| + |p3-p5|) / (2 * |p1-p4|) from
// six eye landmarks. A zero horizontal distance returns the default open
// value instead of dividing by zero.
func eyeAspectRatio(eye []recognize.Point) float64 {
	if len(eye) != 6 {
		return defaultOpenEAR
	}

	v1 := pointDistance(eye[1], eye[5])
	v2 := pointDistance(eye[2], eye[4])
	h := pointDistance(eye[0], eye[3])

	if h == 0 {
		return defaultOpenEAR
	}
	return (v1 + v2) / (2.0 * h)
}

func pointDistance(a, b recognize.Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// updateBlink advances the closed-eye run and reports whether a blink
// completed on this frame. A blink is a run of closed-eye frames followed
// by a re-opening.
func (a *Analyzer) updateBlink(st *State, avgEAR float64) bool {
	if avgEAR < a.cfg.EARClosedThreshold {
		st.closedEyeFrames++
		return false
	}

	blink := st.closedEyeFrames >= a.cfg.BlinkConsecutiveFrames
	if blink {
		st.blinkCount++
	}
	st.closedEyeFrames = 0
	return blink
}

// updateMovement tracks the nose tip and reports whether the largest
// per-axis range over the window exceeds the movement threshold.
func (a *Analyzer) updateMovement(st *State, nose recognize.Point) bool {
	st.positions = pushPoint(st.positions, nose)
	if len(st.positions) < movementMinSamples {
		return false
	}

	minX, maxX := st.positions[0].X, st.positions[0].X
	minY, maxY := st.positions[0].Y, st.positions[0].Y
	for _, p := range st.positions[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	return math.Max(maxX-minX, maxY-minY) > a.cfg.MovementThreshold
}

// ProcessFrame scores a single frame given its landmarks and decoded
// image. The frame image may be nil, in which case texture contributes
// nothing.
func (a *Analyzer) ProcessFrame(st *State, lm *recognize.Landmarks, frame image.Image) Result {
	if lm == nil || !lm.Found {
		return Result{IsLive: false, Confidence: 0, Reason: "no face detected"}
	}

	leftEAR := eyeAspectRatio(lm.LeftEye)
	rightEAR := eyeAspectRatio(lm.RightEye)
	avgEAR := (leftEAR + rightEAR) / 2.0
	st.earHistory = pushFloat(st.earHistory, avgEAR)

	blink := a.updateBlink(st, avgEAR)
	movement := a.updateMovement(st, lm.NoseTip)

	var texture float64
	if frame != nil {
		texture = a.TextureScore(frame)
	}

	var confidence float64
	var reasons []string

	if blink || st.blinkCount > 0 {
		confidence += a.cfg.BlinkWeight
		reasons = append(reasons, "blink detected")
	}
	if movement {
		confidence += a.cfg.MovementWeight
		reasons = append(reasons, "movement detected")
	}
	if texture > a.cfg.TextureMinScore {
		confidence += a.cfg.TextureWeight
		reasons = append(reasons, fmt.Sprintf("texture score: %.2f", texture))
	}

	if confidence > 1 {
		confidence = 1
	}

	reason := "no liveness indicators"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, ", ")
	}

	return Result{
		IsLive:           confidence >= a.cfg.AcceptConfidence,
		Confidence:       confidence,
		Reason:           reason,
		BlinkDetected:    blink,
		MovementDetected: movement,
		TextureScore:     texture,
	}
}

// frameInput is one frame of a batch check.
type frameInput struct {
	landmarks *recognize.Landmarks
	image     image.Image
}

// processBatch runs the per-frame analysis over a burst of frames on
// fresh state and aggregates. The batch is accepted as live when the
// average confidence clears the bar, or when both a blink and movement
// were observed anywhere in the burst.
func (a *Analyzer) processBatch(st *State, frames []frameInput) Result {
	if len(frames) == 0 {
		return Result{IsLive: false, Confidence: 0, Reason: "no frames provided"}
	}

	st.Reset()

	var total float64
	anyBlink := false
	anyMovement := false
	for _, f := range frames {
		r := a.ProcessFrame(st, f.landmarks, f.image)
		total += r.Confidence
		anyBlink = anyBlink || r.BlinkDetected
		anyMovement = anyMovement || r.MovementDetected
	}
	anyBlink = anyBlink || st.blinkCount > 0

	avg := total / float64(len(frames))
	isLive := avg >= a.cfg.BatchConfidence || (anyBlink && anyMovement)

	var reasons []string
	if anyBlink {
		reasons = append(reasons, fmt.Sprintf("blinks: %d", st.blinkCount))
	}
	if anyMovement {
		reasons = append(reasons, "head movement")
	}
	reasons = append(reasons, fmt.Sprintf("avg confidence: %.2f", avg))

	return Result{
		IsLive:           isLive,
		Confidence:       avg,
		Reason:           strings.Join(reasons, ", "),
		BlinkDetected:    anyBlink,
		MovementDetected: anyMovement,
	}
}
