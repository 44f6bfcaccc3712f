//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testEmbedding(dim int) []float32 {
	emb := make([]float32, dim)
	for i := range emb {
		emb[i] = float32(i) / float32(dim)
	}
	return emb
}

func TestStudentRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewStudentRepository(pool)

	var studentID int64

	t.Run("CreateAndGet", func(t *testing.T) {
		created, err := repo.Create(ctx, database.Student{
			Name:      "Jan Novák",
			Code:      "S1001",
			Email:     "jan@example.com",
			Embedding: testEmbedding(512),
			Dim:       512,
			IsActive:  true,
		})
		if err != nil {
			t.Fatalf("Failed to create student: %v", err)
		}
		if created.ID == 0 {
			t.Fatal("Expected assigned ID")
		}
		studentID = created.ID

		got, err := repo.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Failed to get student: %v", err)
		}
		if got.Name != "Jan Novák" {
			t.Errorf("Expected name 'Jan Novák', got '%s'", got.Name)
		}
		if len(got.Embedding) != 512 {
			t.Errorf("Expected 512 dimensions, got %d", len(got.Embedding))
		}
	})

	t.Run("CreateWithoutEmbedding", func(t *testing.T) {
		created, err := repo.Create(ctx, database.Student{
			Name:     "No Photo",
			Code:     "S1002",
			IsActive: true,
		})
		if err != nil {
			t.Fatalf("Failed to create student: %v", err)
		}

		got, err := repo.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Failed to get student: %v", err)
		}
		if got.Embedding != nil {
			t.Errorf("Expected nil embedding, got %d values", len(got.Embedding))
		}
	})

	t.Run("DuplicateCodeAndEmail", func(t *testing.T) {
		if _, err := repo.Create(ctx, database.Student{
			Name:     "Another Jan",
			Code:     "S1001",
			IsActive: true,
		}); err != database.ErrDuplicate {
			t.Errorf("Expected ErrDuplicate for code, got %v", err)
		}

		if _, err := repo.Create(ctx, database.Student{
			Name:     "Another Jan",
			Code:     "S1003",
			Email:    "jan@example.com",
			IsActive: true,
		}); err != database.ErrDuplicate {
			t.Errorf("Expected ErrDuplicate for email, got %v", err)
		}
	})

	t.Run("GetByCode", func(t *testing.T) {
		got, err := repo.GetByCode(ctx, "S1001")
		if err != nil {
			t.Fatalf("Failed to get by code: %v", err)
		}
		if got.ID != studentID {
			t.Errorf("Expected ID %d, got %d", studentID, got.ID)
		}

		if _, err := repo.GetByCode(ctx, "missing"); err != database.ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListActiveOnly", func(t *testing.T) {
		if err := repo.SetActive(ctx, studentID, false); err != nil {
			t.Fatalf("Failed to deactivate: %v", err)
		}

		all, err := repo.List(ctx, false)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		active, err := repo.List(ctx, true)
		if err != nil {
			t.Fatalf("Failed to list active: %v", err)
		}
		if len(active) != len(all)-1 {
			t.Errorf("Expected one fewer active student, got %d of %d", len(active), len(all))
		}

		if err := repo.SetActive(ctx, studentID, true); err != nil {
			t.Fatalf("Failed to reactivate: %v", err)
		}
	})

	t.Run("UpdateEmbedding", func(t *testing.T) {
		emb := testEmbedding(512)
		emb[0] = 0.5
		if err := repo.UpdateEmbedding(ctx, studentID, emb, 512); err != nil {
			t.Fatalf("Failed to update embedding: %v", err)
		}

		got, _ := repo.Get(ctx, studentID)
		if got.Embedding[0] != 0.5 {
			t.Errorf("Embedding update not reflected, got %f", got.Embedding[0])
		}
	})

	t.Run("Count", func(t *testing.T) {
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 2 {
			t.Errorf("Expected 2 students, got %d", count)
		}
	})
}

func TestAttendanceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	students := NewStudentRepository(pool)
	repo := NewAttendanceRepository(pool)

	created, err := students.Create(ctx, database.Student{Name: "Marie", Code: "S2001", IsActive: true})
	if err != nil {
		t.Fatalf("Failed to create student: %v", err)
	}

	now := time.Now()

	t.Run("RecordOncePerDay", func(t *testing.T) {
		outcome, err := repo.RecordAttendance(ctx, created.ID, 0.92, now)
		if err != nil {
			t.Fatalf("Failed to record attendance: %v", err)
		}
		if outcome != database.OutcomeCreated {
			t.Errorf("Expected created, got %s", outcome)
		}

		outcome, err = repo.RecordAttendance(ctx, created.ID, 0.95, now)
		if err != nil {
			t.Fatalf("Duplicate record should not error: %v", err)
		}
		if outcome != database.OutcomeAlreadyRecorded {
			t.Errorf("Expected already_recorded, got %s", outcome)
		}
	})

	t.Run("HasRecordForDay", func(t *testing.T) {
		has, err := repo.HasRecordForDay(ctx, created.ID, now)
		if err != nil {
			t.Fatalf("Failed to check record: %v", err)
		}
		if !has {
			t.Error("Expected record for today")
		}

		has, err = repo.HasRecordForDay(ctx, created.ID, now.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("Failed to check record: %v", err)
		}
		if has {
			t.Error("Expected no record for tomorrow")
		}
	})

	t.Run("ListByDay", func(t *testing.T) {
		records, err := repo.ListByDay(ctx, now)
		if err != nil {
			t.Fatalf("Failed to list by day: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("Expected 1 record, got %d", len(records))
		}
		if records[0].StudentName != "Marie" {
			t.Errorf("Expected joined student name, got '%s'", records[0].StudentName)
		}
		if records[0].Status != database.StatusPresent {
			t.Errorf("Expected PRESENT, got '%s'", records[0].Status)
		}
	})

	t.Run("History", func(t *testing.T) {
		records, err := repo.History(ctx, 7)
		if err != nil {
			t.Fatalf("Failed to get history: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("Expected 1 record in last 7 days, got %d", len(records))
		}
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		if err := students.Delete(ctx, created.ID); err != nil {
			t.Fatalf("Failed to delete student: %v", err)
		}
		records, err := repo.ListByDay(ctx, now)
		if err != nil {
			t.Fatalf("Failed to list by day: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("Expected cascade delete of attendance, got %d records", len(records))
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	applied, err := pool.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied versions: %v", err)
	}

	expected := []string{
		"001_create_students.sql",
		"002_create_attendance.sql",
	}

	if len(applied) != len(expected) {
		t.Errorf("Expected %d migrations, got %d", len(expected), len(applied))
	}
	for i, want := range expected {
		if i < len(applied) && applied[i] != want {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, want, applied[i])
		}
	}

	// re-running must be a no-op, not a duplicate apply
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}
	again, err := pool.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied versions: %v", err)
	}
	if len(again) != len(expected) {
		t.Errorf("Expected %d migrations after rerun, got %d", len(expected), len(again))
	}
}
