package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facegate/facegate/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// StudentRepository provides PostgreSQL-backed student storage.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// Create inserts a new student and returns it with the assigned ID.
func (r *StudentRepository) Create(ctx context.Context, s database.Student) (*database.Student, error) {
	query := `
		INSERT INTO students (name, code, email, embedding, dim, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	var vec any
	if len(s.Embedding) > 0 {
		vec = pgvector.NewVector(s.Embedding)
	}

	err := r.pool.QueryRow(ctx, query, s.Name, s.Code, s.Email, vec, s.Dim, s.IsActive).
		Scan(&s.ID, &s.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return nil, database.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert student: %w", err)
	}
	return &s, nil
}

// Get retrieves a student by ID.
func (r *StudentRepository) Get(ctx context.Context, id int64) (*database.Student, error) {
	return r.getOne(ctx, "WHERE id = $1", id)
}

// GetByCode retrieves a student by enrollment code.
func (r *StudentRepository) GetByCode(ctx context.Context, code string) (*database.Student, error) {
	return r.getOne(ctx, "WHERE code = $1", code)
}

func (r *StudentRepository) getOne(ctx context.Context, where string, arg any) (*database.Student, error) {
	query := `
		SELECT id, name, code, email, embedding, dim, is_active, created_at
		FROM students ` + where

	var s database.Student
	var vec pgvector.Vector
	var hasVec sql.NullString

	// embedding may be NULL for students enrolled without a reference photo
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&s.ID, &s.Name, &s.Code, &s.Email, &hasVec, &s.Dim, &s.IsActive, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}

	if hasVec.Valid {
		if err := vec.Parse(hasVec.String); err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
		s.Embedding = vec.Slice()
	}
	return &s, nil
}

// List returns students ordered by ID.
func (r *StudentRepository) List(ctx context.Context, activeOnly bool) ([]database.Student, error) {
	query := `
		SELECT id, name, code, email, embedding, dim, is_active, created_at
		FROM students
	`
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY id"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var out []database.Student
	for rows.Next() {
		var s database.Student
		var hasVec sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.Email, &hasVec, &s.Dim, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		if hasVec.Valid {
			var vec pgvector.Vector
			if err := vec.Parse(hasVec.String); err != nil {
				return nil, fmt.Errorf("parse embedding: %w", err)
			}
			s.Embedding = vec.Slice()
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return out, nil
}

// UpdateEmbedding replaces a student's stored embedding.
func (r *StudentRepository) UpdateEmbedding(ctx context.Context, id int64, embedding []float32, dim int) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE students SET embedding = $1, dim = $2 WHERE id = $3",
		pgvector.NewVector(embedding), dim, id,
	)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	return requireRow(result)
}

// SetActive flips a student's active flag.
func (r *StudentRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := r.pool.Exec(ctx, "UPDATE students SET is_active = $1 WHERE id = $2", active, id)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return requireRow(result)
}

// Delete removes a student, cascading to their attendance records.
func (r *StudentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return requireRow(result)
}

// Count returns the total number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM students").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}
