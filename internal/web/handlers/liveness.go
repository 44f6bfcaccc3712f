package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/facegate/facegate/internal/session"
)

// LivenessHandler exposes the batch liveness check.
type LivenessHandler struct {
	coordinator *session.Coordinator
}

// NewLivenessHandler creates a new liveness handler.
func NewLivenessHandler(coordinator *session.Coordinator) *LivenessHandler {
	return &LivenessHandler{coordinator: coordinator}
}

// Check handles POST /liveness/check. It accepts a multipart form with
// one or more "frames" files, runs the multi-frame analysis and returns
// the aggregate verdict.
func (h *LivenessHandler) Check(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "frame uploads are required")
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["frames"]) == 0 {
		respondError(w, http.StatusBadRequest, "at least one frame is required")
		return
	}

	var frames [][]byte
	for _, header := range r.MultipartForm.File["frames"] {
		file, err := header.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read frame upload")
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
		file.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read frame upload")
			return
		}
		frames = append(frames, data)
	}

	result := h.coordinator.CheckLiveness(r.Context(), frames)
	log.Printf("liveness check over %d frames: live=%v confidence=%.2f", len(frames), result.IsLive, result.Confidence)
	respondJSON(w, http.StatusOK, result)
}
