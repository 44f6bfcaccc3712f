package session

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/facegate/facegate/internal/recognize"
)

// ErrNoFace is returned when no orientation of a reference photo
// contains a detectable face.
var ErrNoFace = errors.New("no face detected, please use a clearer photo with good lighting")

// ErrMultipleFaces is returned when a reference photo contains more than
// one person.
var ErrMultipleFaces = errors.New("multiple faces detected, please use a photo with only one person")

// EnrollmentEmbedding extracts the face embedding for a reference photo.
// Detectors are not rotation invariant, so each orientation is tried
// until one produces a single face.
func EnrollmentEmbedding(ctx context.Context, vision FaceSource, img image.Image, imageData []byte) ([]float32, error) {
	orientations := []func(image.Image) image.Image{
		nil, // original orientation first
		recognize.Rotate90,
		recognize.Rotate180,
		recognize.Rotate270,
	}

	for _, rotate := range orientations {
		data := imageData
		if rotate != nil {
			rotated, err := recognize.EncodeJPEG(rotate(img))
			if err != nil {
				continue
			}
			data = rotated
		}

		detections, err := vision.DetectFaces(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("face detection failed: %w", err)
		}
		if len(detections) == 0 {
			continue
		}
		if len(detections) > 1 {
			return nil, ErrMultipleFaces
		}

		embedding, err := vision.ComputeEmbedding(ctx, data, true)
		if err != nil {
			return nil, fmt.Errorf("embedding extraction failed: %w", err)
		}
		if embedding != nil {
			return embedding, nil
		}
	}

	return nil, ErrNoFace
}
