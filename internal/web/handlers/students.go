package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/recognize"
	"github.com/facegate/facegate/internal/session"
)

// StudentsHandler handles the student registry endpoints.
type StudentsHandler struct {
	config *config.Config
	store  database.StudentStore
	vision session.FaceSource
	cache  *identity.Cache
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(cfg *config.Config, store database.StudentStore, vision session.FaceSource, cache *identity.Cache) *StudentsHandler {
	return &StudentsHandler{config: cfg, store: store, vision: vision, cache: cache}
}

type studentResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Email     string `json:"email,omitempty"`
	IsActive  bool   `json:"is_active"`
	HasFace   bool   `json:"has_face"`
	CreatedAt string `json:"created_at"`
}

func toStudentResponse(s database.Student) studentResponse {
	return studentResponse{
		ID:        s.ID,
		Name:      s.Name,
		Code:      s.Code,
		Email:     s.Email,
		IsActive:  s.IsActive,
		HasFace:   len(s.Embedding) > 0,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// List handles GET /students. The q parameter filters by name,
// insensitive to case and diacritics.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	query := database.NormalizeStudentName(r.URL.Query().Get("q"))

	students, err := h.store.List(r.Context(), activeOnly)
	if err != nil {
		log.Printf("list students: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	resp := make([]studentResponse, 0, len(students))
	for _, s := range students {
		if query != "" && !strings.Contains(database.NormalizeStudentName(s.Name), query) {
			continue
		}
		resp = append(resp, toStudentResponse(s))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get handles GET /students/{id}.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid student id")
		return
	}

	student, err := h.store.Get(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		log.Printf("get student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to get student")
		return
	}
	respondJSON(w, http.StatusOK, toStudentResponse(*student))
}

// Register handles POST /students. It expects a multipart form with
// name, code, an optional email and a reference photo, extracts the
// face embedding and stores the student.
func (h *StudentsHandler) Register(w http.ResponseWriter, r *http.Request) {
	imageData, err := readUploadedFile(r, "file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo upload is required")
		return
	}

	name := r.FormValue("name")
	code := r.FormValue("code")
	if name == "" || code == "" {
		respondError(w, http.StatusBadRequest, "name and code are required")
		return
	}

	img, err := recognize.DecodeImage(imageData)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image file or format")
		return
	}

	embedding, err := session.EnrollmentEmbedding(r.Context(), h.vision, img, imageData)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.GetByCode(r.Context(), code); err == nil {
		respondError(w, http.StatusConflict, "student code already registered")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		log.Printf("check student code %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to register student")
		return
	}

	created, err := h.store.Create(r.Context(), database.Student{
		Name:      name,
		Code:      code,
		Email:     r.FormValue("email"),
		Embedding: embedding,
		Dim:       len(embedding),
		IsActive:  true,
	})
	if errors.Is(err, database.ErrDuplicate) {
		respondError(w, http.StatusConflict, "student code or email already registered")
		return
	}
	if err != nil {
		log.Printf("create student %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to register student")
		return
	}

	// pick the new face up immediately instead of waiting out the interval
	if err := h.cache.Refresh(r.Context(), true); err != nil {
		log.Printf("cache refresh after registration: %v", err)
	}

	log.Printf("registered student %s (%s)", sanitizeForLog(name), sanitizeForLog(code))
	respondJSON(w, http.StatusCreated, toStudentResponse(*created))
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive handles PUT /students/{id}/active.
func (h *StudentsHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid student id")
		return
	}

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = h.store.SetActive(r.Context(), id, req.Active)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		log.Printf("set active for student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to update student")
		return
	}

	if err := h.cache.Refresh(r.Context(), true); err != nil {
		log.Printf("cache refresh after activation change: %v", err)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

// Delete handles DELETE /students/{id}.
func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid student id")
		return
	}

	student, err := h.store.Get(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		log.Printf("get student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to delete student")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		log.Printf("delete student %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to delete student")
		return
	}

	if err := h.cache.Refresh(r.Context(), true); err != nil {
		log.Printf("cache refresh after deletion: %v", err)
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Student %s deleted successfully", student.Name),
	})
}
