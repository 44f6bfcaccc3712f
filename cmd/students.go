package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/database/postgres"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List and manage enrolled students",
	Long:  `List all enrolled students. Use subcommands to remove or deactivate them.`,
	RunE:  runStudentsList,
}

var studentsRemoveCmd = &cobra.Command{
	Use:   "remove <id...>",
	Short: "Remove students by ID",
	Long: `Remove one or more students by their ID. Attendance records of a
removed student are deleted with them.

Example:
  facegate students remove 12
  facegate students remove 12 13 14`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStudentsRemove,
}

var studentsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Deactivate a student without deleting them",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentsDeactivate,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
	studentsCmd.AddCommand(studentsRemoveCmd)
	studentsCmd.AddCommand(studentsDeactivateCmd)

	studentsCmd.Flags().Bool("active", false, "Only show active students")
}

func openStore() (*postgres.Store, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	store, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return store, nil
}

func runStudentsList(cmd *cobra.Command, args []string) error {
	activeOnly := mustGetBool(cmd, "active")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	students, err := store.List(context.Background(), activeOnly)
	if err != nil {
		return fmt.Errorf("failed to list students: %w", err)
	}
	if len(students) == 0 {
		fmt.Println("No students enrolled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tNAME\tACTIVE\tFACE\tENROLLED")
	fmt.Fprintln(w, "--\t----\t----\t------\t----\t--------")

	for _, s := range students {
		active, face := "", ""
		if s.IsActive {
			active = "*"
		}
		if len(s.Embedding) > 0 {
			face = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Code, s.Name, active, face, s.CreatedAt.Format(time.DateOnly))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d student(s)\n", len(students))
	return nil
}

func runStudentsRemove(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Printf("Skipping %q: not a valid ID\n", arg)
			continue
		}

		student, err := store.Get(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			fmt.Printf("Student %d not found\n", id)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to get student %d: %w", id, err)
		}

		if err := store.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to remove student %d: %w", id, err)
		}
		fmt.Printf("Removed %s (%s)\n", student.Name, student.Code)
	}
	return nil
}

func runStudentsDeactivate(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid student ID %q", args[0])
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.SetActive(context.Background(), id, false)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("student %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to deactivate student %d: %w", id, err)
	}
	fmt.Printf("Deactivated student %d\n", id)
	return nil
}
