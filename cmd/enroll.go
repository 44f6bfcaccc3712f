package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/database/postgres"
	"github.com/facegate/facegate/internal/recognize"
	"github.com/facegate/facegate/internal/session"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <folder-path>",
	Short: "Enroll students from a folder of reference photos",
	Long: `Enroll students in bulk from a folder of reference photos.

File names encode the student identity as <code>_<name>, underscores in
the name part become spaces. Supported formats: jpg, jpeg, png, bmp.

Example:
  facegate enroll /path/to/photos          # S1001_Jan_Novak.jpg -> code S1001, name "Jan Novak"
  facegate enroll --workers 8 /path/to/photos`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int("workers", 4, "Number of concurrent enrollment workers")
	enrollCmd.Flags().Bool("dry-run", false, "Parse and validate photos without writing to the database")
}

var enrollExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// parsePhotoName splits "<code>_<name>" out of a photo file name.
func parsePhotoName(path string) (code, name string, err error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	code, rest, found := strings.Cut(base, "_")
	if !found || code == "" || rest == "" {
		return "", "", fmt.Errorf("file name %q does not match <code>_<name>", filepath.Base(path))
	}
	return code, strings.ReplaceAll(rest, "_", " "), nil
}

func collectPhotos(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}

	var photos []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if enrollExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			photos = append(photos, filepath.Join(folder, entry.Name()))
		}
	}
	return photos, nil
}

// enrollOne reads one photo, extracts the embedding and creates the student.
func enrollOne(ctx context.Context, store database.StudentStore, vision session.FaceSource, path string, dryRun bool) error {
	code, name, err := parsePhotoName(path)
	if err != nil {
		return err
	}

	if _, err := store.GetByCode(ctx, code); err == nil {
		return fmt.Errorf("code %s already registered", code)
	} else if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to check code %s: %w", code, err)
	}

	imageData, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
	}
	img, err := recognize.DecodeImage(imageData)
	if err != nil {
		return fmt.Errorf("invalid image: %w", err)
	}

	embedding, err := session.EnrollmentEmbedding(ctx, vision, img, imageData)
	if err != nil {
		return err
	}
	if dryRun {
		return nil
	}

	_, err = store.Create(ctx, database.Student{
		Name:      name,
		Code:      code,
		Embedding: embedding,
		Dim:       len(embedding),
		IsActive:  true,
	})
	return err
}

func runEnroll(cmd *cobra.Command, args []string) error {
	workers := mustGetInt(cmd, "workers")
	if workers < 1 {
		workers = 1
	}
	dryRun := mustGetBool(cmd, "dry-run")

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	store, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer store.Close()

	photos, err := collectPhotos(args[0])
	if err != nil {
		return err
	}
	if len(photos) == 0 {
		fmt.Println("No photos found")
		return nil
	}

	vision := recognize.NewClient(cfg.Vision.URL)
	ctx := context.Background()

	fmt.Printf("Enrolling %d photo(s)...\n", len(photos))
	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var (
		enrollErrors []string
		errorsMu     sync.Mutex
		wg           sync.WaitGroup
		sem          = make(chan struct{}, workers)
	)

	for _, path := range photos {
		wg.Add(1)
		sem <- struct{}{}

		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := enrollOne(ctx, store, vision, path, dryRun); err != nil {
				errorsMu.Lock()
				enrollErrors = append(enrollErrors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
				errorsMu.Unlock()
			}
			bar.Add(1)
		}(path)
	}
	wg.Wait()
	fmt.Println()

	enrolled := len(photos) - len(enrollErrors)
	if dryRun {
		fmt.Printf("Dry run: %d photo(s) would enroll\n", enrolled)
	} else {
		fmt.Printf("Enrolled %d student(s)\n", enrolled)
	}
	if len(enrollErrors) > 0 {
		fmt.Printf("\n%d photo(s) failed:\n", len(enrollErrors))
		for _, msg := range enrollErrors {
			fmt.Printf("  %s\n", msg)
		}
	}
	return nil
}
