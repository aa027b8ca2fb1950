package inference

import (
	"github.com/khaledhikmat/vs-counter/model"
	"gocv.io/x/gocv"
)

const (
	Yolo5DetectorName = "yolo5"
	BlobDetectorName  = "blob"
	NoneDetectorName  = "none"
)

// IService detects and tracks objects one frame at a time. Calls must be
// made in acquisition order since tracking identity carries across calls.
type IService interface {
	// DetectAndTrack returns an annotated copy of frame (the caller closes
	// it) and the detections found in it.
	DetectAndTrack(frame gocv.Mat) (gocv.Mat, []model.Detection, error)
	// Reset forgets every track. IDs keep increasing across resets.
	Reset()
	Close() error
}

// detector finds untracked objects in a frame.
type detector interface {
	detect(frame gocv.Mat) ([]model.Detection, error)
	close() error
}
