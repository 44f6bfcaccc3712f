package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	Vision   VisionConfig
	Match    MatchConfig
	Liveness LivenessConfig
	Database DatabaseConfig
}

// VisionConfig describes the external vision service that provides face
// detection, embedding extraction and facial landmarks.
type VisionConfig struct {
	URL       string // defaults to http://localhost:8000
	Dim       int    // embedding dimension, defaults to 512
	Landmarks bool   // whether the landmark endpoint is available
}

type MatchConfig struct {
	Threshold      float64       // maximum cosine distance to accept
	MarkThreshold  float64       // looser threshold for single-shot marking
	RequiredFrames int           // consecutive frames before confirmation
	CacheRefresh   time.Duration // maximum snapshot age before rebuild
	IndexedMatcher bool          // use HNSW instead of linear scan
}

type LivenessConfig struct {
	EARClosedThreshold     float64 `yaml:"ear_closed_threshold"`
	BlinkConsecutiveFrames int     `yaml:"blink_consecutive_frames"`
	MovementThreshold      float64 `yaml:"movement_threshold"`
	TextureNormConstant    float64 `yaml:"texture_norm_constant"`
	TextureMinScore        float64 `yaml:"texture_min_score"`
	BlinkWeight            float64 `yaml:"blink_weight"`
	MovementWeight         float64 `yaml:"movement_weight"`
	TextureWeight          float64 `yaml:"texture_weight"`
	AcceptConfidence       float64 `yaml:"accept_confidence"`
	BatchConfidence        float64 `yaml:"batch_confidence"`
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// thresholdsFile mirrors the structure of the embedded thresholds.yaml.
type thresholdsFile struct {
	Match struct {
		Threshold           float64 `yaml:"threshold"`
		MarkThreshold       float64 `yaml:"mark_threshold"`
		RequiredFrames      int     `yaml:"required_frames"`
		CacheRefreshSeconds int     `yaml:"cache_refresh_seconds"`
	} `yaml:"match"`
	Liveness LivenessConfig `yaml:"liveness"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable and parses it as a boolean flag.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func Load() *Config {
	var defaults thresholdsFile
	if err := yaml.Unmarshal(thresholdsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice.
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	return &Config{
		Vision: VisionConfig{
			URL:       os.Getenv("VISION_URL"),
			Dim:       envInt("VISION_DIM", 512),
			Landmarks: envBool("VISION_LANDMARKS", true),
		},
		Match: MatchConfig{
			Threshold:      envFloat("MATCH_THRESHOLD", defaults.Match.Threshold),
			MarkThreshold:  envFloat("MATCH_MARK_THRESHOLD", defaults.Match.MarkThreshold),
			RequiredFrames: envInt("MATCH_REQUIRED_FRAMES", defaults.Match.RequiredFrames),
			CacheRefresh:   time.Duration(envInt("CACHE_REFRESH_SECONDS", defaults.Match.CacheRefreshSeconds)) * time.Second,
			IndexedMatcher: envBool("MATCH_INDEXED", false),
		},
		Liveness: LivenessConfig{
			EARClosedThreshold:     envFloat("LIVENESS_EAR_CLOSED", defaults.Liveness.EARClosedThreshold),
			BlinkConsecutiveFrames: envInt("LIVENESS_BLINK_FRAMES", defaults.Liveness.BlinkConsecutiveFrames),
			MovementThreshold:      envFloat("LIVENESS_MOVEMENT", defaults.Liveness.MovementThreshold),
			TextureNormConstant:    envFloat("LIVENESS_TEXTURE_NORM", defaults.Liveness.TextureNormConstant),
			TextureMinScore:        envFloat("LIVENESS_TEXTURE_MIN", defaults.Liveness.TextureMinScore),
			BlinkWeight:            defaults.Liveness.BlinkWeight,
			MovementWeight:         defaults.Liveness.MovementWeight,
			TextureWeight:          defaults.Liveness.TextureWeight,
			AcceptConfidence:       envFloat("LIVENESS_ACCEPT", defaults.Liveness.AcceptConfidence),
			BatchConfidence:        envFloat("LIVENESS_BATCH_ACCEPT", defaults.Liveness.BatchConfidence),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
	}
}
