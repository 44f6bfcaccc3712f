package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/facegate/facegate/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// RecordAttendance writes a PRESENT record for the student on the given
// day. The per-day unique constraint makes the write idempotent; a
// duplicate reports already_recorded instead of failing.
func (r *AttendanceRepository) RecordAttendance(ctx context.Context, studentID int64, confidence float64, day time.Time) (database.RecordOutcome, error) {
	query := `
		INSERT INTO attendance (student_id, status, confidence, marked_at, marked_on)
		VALUES ($1, $2, $3, $4, $4::date)
		ON CONFLICT (student_id, marked_on) DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query, studentID, database.StatusPresent, confidence, day)
	if err != nil {
		return "", fmt.Errorf("insert attendance: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.OutcomeAlreadyRecorded, nil
	}
	return database.OutcomeCreated, nil
}

// HasRecordForDay reports whether the student already has a record for
// the given day.
func (r *AttendanceRepository) HasRecordForDay(ctx context.Context, studentID int64, day time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM attendance WHERE student_id = $1 AND marked_on = $2::date)",
		studentID, day,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance exists: %w", err)
	}
	return exists, nil
}

// ListByDay returns all records for one day, newest first.
func (r *AttendanceRepository) ListByDay(ctx context.Context, day time.Time) ([]database.AttendanceRecord, error) {
	query := `
		SELECT a.id, a.student_id, s.name, a.status, a.confidence, a.marked_at
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.marked_on = $1::date
		ORDER BY a.marked_at DESC
	`
	return r.queryRecords(ctx, query, day)
}

// History returns records from the last n days, newest first.
func (r *AttendanceRepository) History(ctx context.Context, days int) ([]database.AttendanceRecord, error) {
	query := `
		SELECT a.id, a.student_id, s.name, a.status, a.confidence, a.marked_at
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.marked_on > CURRENT_DATE - $1::int
		ORDER BY a.marked_at DESC
	`
	return r.queryRecords(ctx, query, days)
}

func (r *AttendanceRepository) queryRecords(ctx context.Context, query string, args ...any) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var out []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.Status, &rec.Confidence, &rec.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return out, nil
}
