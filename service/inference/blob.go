package inference

import (
	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/config"
	"gocv.io/x/gocv"
)

const blobThreshold = 200

// blob reports bright regions as class 0 detections. It needs no model and
// pairs with the synthetic source.
type blob struct {
	minArea float64
}

func newBlob(params config.DetectorParameters) *blob {
	return &blob{minArea: params.MinBlobArea}
}

func (b *blob) detect(frame gocv.Mat) ([]model.Detection, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(gray, &mask, blobThreshold, 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var dets []model.Detection
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if gocv.ContourArea(c) < b.minArea {
			continue
		}
		r := gocv.BoundingRect(c)
		dets = append(dets, model.Detection{
			Box:        model.Box{X1: float64(r.Min.X), Y1: float64(r.Min.Y), X2: float64(r.Max.X), Y2: float64(r.Max.Y)},
			ClassID:    0,
			Confidence: 1,
		})
	}
	return dets, nil
}

func (b *blob) close() error {
	return nil
}
