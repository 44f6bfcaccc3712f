package recognize

// BoundingBox is a detected face region in pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore float64   `json:"det_score"`
}

// DetectResponse represents the response from the face detection endpoint
type DetectResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Point is a normalized 2-D landmark coordinate in [0,1] frame space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmarks carries the facial geometry needed for liveness analysis.
// Eye points follow the standard six-point EAR ordering:
// p1 outer corner, p2/p3 upper lid, p4 inner corner, p5/p6 lower lid.
type Landmarks struct {
	Found    bool    `json:"found"`
	LeftEye  []Point `json:"left_eye"`
	RightEye []Point `json:"right_eye"`
	NoseTip  Point   `json:"nose_tip"`
}

// ToBoundingBox converts a detector bbox [x1, y1, x2, y2] into pixel
// x/y/width/height form for the wire result.
func (f *FaceDetection) ToBoundingBox() BoundingBox {
	if len(f.BBox) != 4 {
		return BoundingBox{}
	}
	return BoundingBox{
		X:      int(f.BBox[0]),
		Y:      int(f.BBox[1]),
		Width:  int(f.BBox[2] - f.BBox[0]),
		Height: int(f.BBox[3] - f.BBox[1]),
	}
}
