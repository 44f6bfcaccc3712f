// Package mock provides in-memory implementations of the storage
// interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/facegate/facegate/internal/database"
)

// MockStore is an in-memory implementation of database.Store.
type MockStore struct {
	mu         sync.RWMutex
	nextID     int64
	students   map[int64]*database.Student
	nextRecID  int64
	attendance []database.AttendanceRecord

	// Error injection
	CreateError          error
	GetError             error
	ListError            error
	UpdateEmbeddingError error
	SetActiveError       error
	DeleteError          error
	CountError           error
	RecordError          error
	HasRecordError       error
	ListByDayError       error
	HistoryError         error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		nextID:   1,
		students: make(map[int64]*database.Student),
	}
}

// AddStudent seeds a student, assigning an ID if none is set.
func (m *MockStore) AddStudent(s database.Student) *database.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.nextID
	}
	if s.ID >= m.nextID {
		m.nextID = s.ID + 1
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.students[s.ID] = &s
	return &s
}

// Create inserts a new student.
func (m *MockStore) Create(ctx context.Context, s database.Student) (*database.Student, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	m.mu.RLock()
	for _, existing := range m.students {
		if existing.Code == s.Code || (s.Email != "" && existing.Email == s.Email) {
			m.mu.RUnlock()
			return nil, database.ErrDuplicate
		}
	}
	m.mu.RUnlock()
	return m.AddStudent(s), nil
}

// Get retrieves a student by ID.
func (m *MockStore) Get(ctx context.Context, id int64) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// GetByCode retrieves a student by enrollment code.
func (m *MockStore) GetByCode(ctx context.Context, code string) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.students {
		if s.Code == code {
			cp := *s
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

// List returns students ordered by ID.
func (m *MockStore) List(ctx context.Context, activeOnly bool) ([]database.Student, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Student, 0, len(m.students))
	for _, s := range m.students {
		if activeOnly && !s.IsActive {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateEmbedding replaces a student's embedding.
func (m *MockStore) UpdateEmbedding(ctx context.Context, id int64, embedding []float32, dim int) error {
	if m.UpdateEmbeddingError != nil {
		return m.UpdateEmbeddingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return database.ErrNotFound
	}
	s.Embedding = append([]float32(nil), embedding...)
	s.Dim = dim
	return nil
}

// SetActive flips a student's active flag.
func (m *MockStore) SetActive(ctx context.Context, id int64, active bool) error {
	if m.SetActiveError != nil {
		return m.SetActiveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return database.ErrNotFound
	}
	s.IsActive = active
	return nil
}

// Delete removes a student and their attendance records.
func (m *MockStore) Delete(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.students, id)
	kept := m.attendance[:0]
	for _, r := range m.attendance {
		if r.StudentID != id {
			kept = append(kept, r)
		}
	}
	m.attendance = kept
	return nil
}

// Count returns the total number of students.
func (m *MockStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students), nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// RecordAttendance writes a PRESENT record, at most once per student per day.
func (m *MockStore) RecordAttendance(ctx context.Context, studentID int64, confidence float64, day time.Time) (database.RecordOutcome, error) {
	if m.RecordError != nil {
		return "", m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.attendance {
		if r.StudentID == studentID && sameDay(r.MarkedAt, day) {
			return database.OutcomeAlreadyRecorded, nil
		}
	}
	m.nextRecID++
	rec := database.AttendanceRecord{
		ID:         m.nextRecID,
		StudentID:  studentID,
		Status:     database.StatusPresent,
		Confidence: confidence,
		MarkedAt:   day,
	}
	if s, ok := m.students[studentID]; ok {
		rec.StudentName = s.Name
	}
	m.attendance = append(m.attendance, rec)
	return database.OutcomeCreated, nil
}

// HasRecordForDay reports whether the student has a record for the day.
func (m *MockStore) HasRecordForDay(ctx context.Context, studentID int64, day time.Time) (bool, error) {
	if m.HasRecordError != nil {
		return false, m.HasRecordError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.attendance {
		if r.StudentID == studentID && sameDay(r.MarkedAt, day) {
			return true, nil
		}
	}
	return false, nil
}

// ListByDay returns the records for one day, newest first.
func (m *MockStore) ListByDay(ctx context.Context, day time.Time) ([]database.AttendanceRecord, error) {
	if m.ListByDayError != nil {
		return nil, m.ListByDayError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for _, r := range m.attendance {
		if sameDay(r.MarkedAt, day) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarkedAt.After(out[j].MarkedAt) })
	return out, nil
}

// History returns records from the last n days, newest first.
func (m *MockStore) History(ctx context.Context, days int) ([]database.AttendanceRecord, error) {
	if m.HistoryError != nil {
		return nil, m.HistoryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().AddDate(0, 0, -days)
	var out []database.AttendanceRecord
	for _, r := range m.attendance {
		if r.MarkedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarkedAt.After(out[j].MarkedAt) })
	return out, nil
}
