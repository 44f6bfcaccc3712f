package recognize

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// DecodeImage decodes raw image bytes into an image.Image.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG bytes.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// CropFace cuts a face region out of the frame with a percentage margin
// around the detector bbox. The crop is clamped to the frame boundaries.
func CropFace(img image.Image, det FaceDetection, margin float64) image.Image {
	if len(det.BBox) != 4 {
		return img
	}

	bounds := img.Bounds()
	w := det.BBox[2] - det.BBox[0]
	h := det.BBox[3] - det.BBox[1]
	mx := int(w * margin)
	my := int(h * margin)

	x1 := max(bounds.Min.X, int(det.BBox[0])-mx)
	y1 := max(bounds.Min.Y, int(det.BBox[1])-my)
	x2 := min(bounds.Max.X, int(det.BBox[2])+mx)
	y2 := min(bounds.Max.Y, int(det.BBox[3])+my)

	if x2 <= x1 || y2 <= y1 {
		return img
	}

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(image.Rect(x1, y1, x2, y2))
	}
	return img
}

// Rotate90 rotates the image 90 degrees clockwise.
func Rotate90(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-y, x-b.Min.X, img.At(x, y))
		}
	}
	return dst
}

// Rotate180 rotates the image 180 degrees.
func Rotate180(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-x, b.Max.Y-1-y, img.At(x, y))
		}
	}
	return dst
}

// Rotate270 rotates the image 90 degrees counterclockwise.
func Rotate270(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(y-b.Min.Y, b.Max.X-1-x, img.At(x, y))
		}
	}
	return dst
}
