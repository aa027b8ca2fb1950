package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/config"
)

func TestYolo5DecodeFiltersAndScales(t *testing.T) {
	y := &yolo5{confThr: 0.5, iouThr: 0.5, allowed: allowList([]int{0, 2})}

	// 3 classes per row: cx, cy, w, h, objectness, c0, c1, c2
	data := []float32{
		320, 320, 64, 64, 0.9, 0.9, 0.1, 0.0, // person
		100, 100, 20, 20, 0.9, 0.0, 0.95, 0.0, // class 1 not allowed
		500, 200, 40, 40, 0.3, 0.0, 0.0, 0.9, // weak objectness
		520, 220, 40, 40, 0.8, 0.0, 0.0, 0.9, // car
	}
	dets := y.decode(data, 4, 8, 0.5, 0.75)

	require.Len(t, dets, 2)
	byClass := map[int]model.Detection{}
	for _, d := range dets {
		byClass[d.ClassID] = d
	}
	person := byClass[0]
	assert.InDelta(t, 144, person.Box.X1, 1e-3)
	assert.InDelta(t, 216, person.Box.Y1, 1e-3)
	assert.InDelta(t, 176, person.Box.X2, 1e-3)
	assert.InDelta(t, 0.81, person.Confidence, 1e-3)
	assert.Contains(t, byClass, 2)
}

func TestYolo5DecodeSuppressesOverlaps(t *testing.T) {
	y := &yolo5{confThr: 0.5, iouThr: 0.5}
	data := []float32{
		100, 100, 50, 50, 0.9, 0.9,
		102, 101, 50, 50, 0.8, 0.9,
	}
	dets := y.decode(data, 2, 6, 1, 1)
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.81, dets[0].Confidence, 1e-3)
}

func TestNewRejectsUnknownDetector(t *testing.T) {
	_, err := New(config.DetectorParameters{Name: "ssd"}, nil)
	assert.Error(t, err)
}

func TestNewYolo5MissingModel(t *testing.T) {
	_, err := New(config.DetectorParameters{Name: Yolo5DetectorName, ModelPath: "/nonexistent/yolov5s.onnx"}, nil)
	assert.Error(t, err)
}

func TestBlobDetectAndTrack(t *testing.T) {
	svc, err := New(config.DetectorParameters{Name: BlobDetectorName, MinBlobArea: 100, TrackerMaxAge: 5}, nil)
	require.NoError(t, err)
	defer svc.Close()

	var last []model.Detection
	for i := 0; i < 3; i++ {
		frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		y := 100 + i*5
		gocv.Rectangle(&frame, image.Rect(200, y, 240, y+40), color.RGBA{255, 255, 255, 0}, -1)

		annotated, dets, err := svc.DetectAndTrack(frame)
		require.NoError(t, err)
		assert.Equal(t, frame.Rows(), annotated.Rows())
		annotated.Close()
		frame.Close()
		last = dets
	}

	require.Len(t, last, 1)
	require.NotNil(t, last[0].TrackID)
	assert.Equal(t, 0, last[0].ClassID)
}

func TestResetForgetsTracks(t *testing.T) {
	svc, err := New(config.DetectorParameters{Name: BlobDetectorName, MinBlobArea: 100, TrackerMaxAge: 5}, nil)
	require.NoError(t, err)
	defer svc.Close()

	step := func() []model.Detection {
		frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		defer frame.Close()
		gocv.Rectangle(&frame, image.Rect(200, 100, 240, 140), color.RGBA{255, 255, 255, 0}, -1)
		annotated, dets, err := svc.DetectAndTrack(frame)
		require.NoError(t, err)
		annotated.Close()
		return dets
	}

	step()
	dets := step()
	require.Len(t, dets, 1)
	require.NotNil(t, dets[0].TrackID)
	first := *dets[0].TrackID

	svc.Reset()
	dets = step()
	require.Len(t, dets, 1)
	assert.Nil(t, dets[0].TrackID, "a reset track has to be confirmed again")

	dets = step()
	require.Len(t, dets, 1)
	require.NotNil(t, dets[0].TrackID)
	assert.Greater(t, *dets[0].TrackID, first)
}

func TestDetectAndTrackRejectsEmptyFrame(t *testing.T) {
	svc, err := New(config.DetectorParameters{Name: NoneDetectorName}, nil)
	require.NoError(t, err)

	empty := gocv.NewMat()
	defer empty.Close()
	out, _, err := svc.DetectAndTrack(empty)
	defer out.Close()
	assert.Error(t, err)
}
