package inference

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/config"
	"github.com/khaledhikmat/vs-counter/service/lgr"
	"gocv.io/x/gocv"
)

var (
	trackedColor   = color.RGBA{0, 255, 0, 0}
	tentativeColor = color.RGBA{160, 160, 160, 0}
)

type trackingService struct {
	mu       sync.Mutex
	detector detector
	tracker  *Tracker
	names    model.ClassNames
}

// New builds the detector named in params and wraps it with an IoU tracker.
func New(params config.DetectorParameters, names model.ClassNames) (IService, error) {
	var (
		d   detector
		err error
	)

	switch params.Name {
	case Yolo5DetectorName, "":
		d, err = newYolo5(params)
	case BlobDetectorName:
		d = newBlob(params)
	case NoneDetectorName:
		d = noDetector{}
	default:
		return nil, fmt.Errorf("unknown detector %q", params.Name)
	}
	if err != nil {
		return nil, err
	}

	lgr.Logger.Info(
		"detector ready",
		slog.String("detector", params.Name),
		slog.String("openCV", gocv.Version()),
		slog.Any("classes", params.Classes),
	)
	return newTracking(d, NewTracker(params.TrackerMaxAge), names), nil
}

func newTracking(d detector, t *Tracker, names model.ClassNames) *trackingService {
	if names == nil {
		names = model.CocoNames
	}
	return &trackingService{
		detector: d,
		tracker:  t,
		names:    names,
	}
}

func (svc *trackingService) DetectAndTrack(frame gocv.Mat) (gocv.Mat, []model.Detection, error) {
	if frame.Empty() {
		return gocv.NewMat(), nil, fmt.Errorf("empty frame")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	dets, err := svc.detector.detect(frame)
	if err != nil {
		return gocv.NewMat(), nil, err
	}
	dets = svc.tracker.Update(dets)

	annotated := frame.Clone()
	for _, d := range dets {
		svc.draw(&annotated, d)
	}
	return annotated, dets, nil
}

func (svc *trackingService) draw(img *gocv.Mat, d model.Detection) {
	rect := image.Rect(int(d.Box.X1), int(d.Box.Y1), int(d.Box.X2), int(d.Box.Y2))
	c := tentativeColor
	label := fmt.Sprintf("%s %.2f", svc.names.Name(d.ClassID), d.Confidence)
	if d.TrackID != nil {
		c = trackedColor
		label = fmt.Sprintf("#%d %s", *d.TrackID, label)
	}

	gocv.Rectangle(img, rect, c, 2)
	gocv.PutText(img, label, image.Pt(rect.Min.X, rect.Min.Y-5), gocv.FontHersheySimplex, 0.5, c, 1)
}

func (svc *trackingService) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.tracker.Reset()
}

func (svc *trackingService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.detector.close()
}

// noDetector finds nothing. Useful to exercise capture and streaming alone.
type noDetector struct{}

func (noDetector) detect(gocv.Mat) ([]model.Detection, error) {
	return nil, nil
}

func (noDetector) close() error {
	return nil
}
