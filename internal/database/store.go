package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with an existing
// student code or email.
var ErrDuplicate = errors.New("duplicate value")

// StudentStore provides access to the student registry.
type StudentStore interface {
	// Create inserts a new student and returns it with the assigned ID.
	Create(ctx context.Context, s Student) (*Student, error)
	// Get retrieves a student by ID, ErrNotFound if missing.
	Get(ctx context.Context, id int64) (*Student, error)
	// GetByCode retrieves a student by enrollment code, ErrNotFound if missing.
	GetByCode(ctx context.Context, code string) (*Student, error)
	// List returns students, optionally restricted to active ones,
	// ordered by ID.
	List(ctx context.Context, activeOnly bool) ([]Student, error)
	// UpdateEmbedding replaces a student's stored embedding.
	UpdateEmbedding(ctx context.Context, id int64, embedding []float32, dim int) error
	// SetActive flips a student's active flag.
	SetActive(ctx context.Context, id int64, active bool) error
	// Delete removes a student and their attendance records.
	Delete(ctx context.Context, id int64) error
	// Count returns the total number of students.
	Count(ctx context.Context) (int, error)
}

// AttendanceStore provides access to attendance records.
type AttendanceStore interface {
	// RecordAttendance writes a PRESENT record for the student on the
	// given day. Writing for a student who already has a record that day
	// is not an error; the outcome reports which case occurred.
	RecordAttendance(ctx context.Context, studentID int64, confidence float64, day time.Time) (RecordOutcome, error)
	// HasRecordForDay reports whether the student already has a record
	// for the given day.
	HasRecordForDay(ctx context.Context, studentID int64, day time.Time) (bool, error)
	// ListByDay returns all records for one day, newest first.
	ListByDay(ctx context.Context, day time.Time) ([]AttendanceRecord, error)
	// History returns records from the last n days, newest first.
	History(ctx context.Context, days int) ([]AttendanceRecord, error)
}

// Store bundles both storage concerns behind one value.
type Store interface {
	StudentStore
	AttendanceStore
}
