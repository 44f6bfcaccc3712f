// Package database defines the storage model and interfaces for student
// enrollment and attendance records.
package database

import "time"

// Attendance statuses as stored in the attendance table.
const (
	StatusPresent = "PRESENT"
	StatusAbsent  = "ABSENT"
)

// Student is an enrolled person with a face embedding.
type Student struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Email     string    `json:"email,omitempty"`
	Embedding []float32 `json:"-"`
	Dim       int       `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// AttendanceRecord is one attendance row. At most one record exists per
// student per day.
type AttendanceRecord struct {
	ID          int64     `json:"id"`
	StudentID   int64     `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	Status      string    `json:"status"`
	Confidence  float64   `json:"confidence"`
	MarkedAt    time.Time `json:"marked_at"`
}

// RecordOutcome reports what an attendance write actually did.
type RecordOutcome string

const (
	// OutcomeCreated means a new attendance row was inserted.
	OutcomeCreated RecordOutcome = "created"
	// OutcomeAlreadyRecorded means the student already had a row for the
	// day and the write was a no-op.
	OutcomeAlreadyRecorded RecordOutcome = "already_recorded"
)
