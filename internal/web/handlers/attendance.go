package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/session"
)

// AttendanceHandler handles attendance marking and reporting.
type AttendanceHandler struct {
	coordinator *session.Coordinator
	store       database.Store
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(coordinator *session.Coordinator, store database.Store) *AttendanceHandler {
	return &AttendanceHandler{coordinator: coordinator, store: store}
}

// Mark handles POST /attendance/mark: a single still image marks the
// matched student present for today.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	imageData, err := readUploadedFile(r, "file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image upload is required")
		return
	}

	result, err := h.coordinator.MarkAttendance(r.Context(), imageData)
	if errors.Is(err, session.ErrInvalidImage) {
		respondError(w, http.StatusBadRequest, "invalid image file")
		return
	}
	if err != nil {
		log.Printf("mark attendance: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to mark attendance")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type attendanceRecordResponse struct {
	ID          int64   `json:"id"`
	StudentID   int64   `json:"student_id"`
	StudentName string  `json:"student_name"`
	Status      string  `json:"status"`
	Confidence  float64 `json:"confidence"`
	MarkedAt    string  `json:"marked_at"`
}

// List handles GET /attendance: records for one day, today by default.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	day := time.Now()
	if q := r.URL.Query().Get("date"); q != "" {
		parsed, err := time.Parse("2006-01-02", q)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		day = parsed
	}

	records, err := h.store.ListByDay(r.Context(), day)
	if err != nil {
		log.Printf("list attendance: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}

	resp := make([]attendanceRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, attendanceRecordResponse{
			ID:          rec.ID,
			StudentID:   rec.StudentID,
			StudentName: rec.StudentName,
			Status:      rec.Status,
			Confidence:  rec.Confidence,
			MarkedAt:    rec.MarkedAt.Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

type studentStatusResponse struct {
	StudentID   int64  `json:"student_id"`
	StudentCode string `json:"student_code"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Time        string `json:"time,omitempty"`
}

type dailyAttendanceResponse struct {
	Date         string                  `json:"date"`
	DayName      string                  `json:"day_name"`
	Students     []studentStatusResponse `json:"students"`
	PresentCount int                     `json:"present_count"`
	AbsentCount  int                     `json:"absent_count"`
}

type historyResponse struct {
	Days          []dailyAttendanceResponse `json:"days"`
	TotalStudents int                       `json:"total_students"`
}

// History handles GET /attendance/history?days=N: a per-day breakdown
// with a PRESENT/ABSENT status for every active student.
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	days := 7
	if q := r.URL.Query().Get("days"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 30 {
			respondError(w, http.StatusBadRequest, "days must be between 1 and 30")
			return
		}
		days = n
	}

	students, err := h.store.List(r.Context(), true)
	if err != nil {
		log.Printf("list students for history: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to build history")
		return
	}
	if len(students) == 0 {
		respondJSON(w, http.StatusOK, historyResponse{Days: []dailyAttendanceResponse{}})
		return
	}

	records, err := h.store.History(r.Context(), days)
	if err != nil {
		log.Printf("attendance history: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to build history")
		return
	}

	// date -> student -> record
	byDate := make(map[string]map[int64]database.AttendanceRecord)
	for _, rec := range records {
		key := rec.MarkedAt.Format("2006-01-02")
		if byDate[key] == nil {
			byDate[key] = make(map[int64]database.AttendanceRecord)
		}
		byDate[key][rec.StudentID] = rec
	}

	resp := historyResponse{TotalStudents: len(students)}
	today := time.Now()
	for offset := 0; offset < days; offset++ {
		day := today.AddDate(0, 0, -offset)
		key := day.Format("2006-01-02")

		entry := dailyAttendanceResponse{
			Date:     key,
			DayName:  day.Weekday().String(),
			Students: make([]studentStatusResponse, 0, len(students)),
		}

		for _, s := range students {
			status := studentStatusResponse{
				StudentID:   s.ID,
				StudentCode: s.Code,
				Name:        s.Name,
				Status:      database.StatusAbsent,
			}
			if rec, ok := byDate[key][s.ID]; ok {
				status.Status = database.StatusPresent
				status.Time = rec.MarkedAt.Format("3:04 PM")
				entry.PresentCount++
			}
			entry.Students = append(entry.Students, status)
		}
		entry.AbsentCount = len(students) - entry.PresentCount

		resp.Days = append(resp.Days, entry)
	}

	respondJSON(w, http.StatusOK, resp)
}
