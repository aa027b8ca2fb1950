package inference

import (
	"fmt"
	"image"
	"os"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/config"
	"gocv.io/x/gocv"
)

const yolo5InputSize = 640

// yolo5 runs a YOLOv5 ONNX export through the OpenCV DNN module. The net is
// not thread-safe; trackingService serializes calls.
type yolo5 struct {
	net     gocv.Net
	confThr float32
	iouThr  float32
	allowed map[int]bool
}

func newYolo5(params config.DetectorParameters) (*yolo5, error) {
	if _, err := os.Stat(params.ModelPath); err != nil {
		return nil, fmt.Errorf("yolo5 model %s: %w", params.ModelPath, err)
	}

	net := gocv.ReadNet(params.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("error reading yolo5 model %s", params.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("error setting backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("error setting target: %w", err)
	}

	return &yolo5{
		net:     net,
		confThr: params.ConfidenceThreshold,
		iouThr:  params.IoUThreshold,
		allowed: allowList(params.Classes),
	}, nil
}

func allowList(classes []int) map[int]bool {
	if len(classes) == 0 {
		return nil
	}
	m := make(map[int]bool, len(classes))
	for _, c := range classes {
		m[c] = true
	}
	return m
}

func (y *yolo5) detect(frame gocv.Mat) ([]model.Detection, error) {
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(yolo5InputSize, yolo5InputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.net.SetInput(blob, "")
	output := y.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 || dims[2] < 6 {
		return nil, fmt.Errorf("unexpected yolo5 output dims %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading yolo5 output: %w", err)
	}

	xf := float32(frame.Cols()) / yolo5InputSize
	yf := float32(frame.Rows()) / yolo5InputSize
	return y.decode(data, dims[1], dims[2], xf, yf), nil
}

// decode turns rows of [cx, cy, w, h, objectness, class scores...] into
// detections in frame coordinates, then applies non-maximum suppression.
func (y *yolo5) decode(data []float32, rows, cols int, xf, yf float32) []model.Detection {
	var (
		rects  []image.Rectangle
		scores []float32
		dets   []model.Detection
	)

	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		objectness := row[4]
		if objectness < y.confThr {
			continue
		}

		classID := -1
		var classScore float32
		for c, s := range row[5:] {
			if y.allowed != nil && !y.allowed[c] {
				continue
			}
			if s > classScore {
				classScore = s
				classID = c
			}
		}
		conf := objectness * classScore
		if classID < 0 || conf < y.confThr {
			continue
		}

		cx, cy := row[0]*xf, row[1]*yf
		w, h := row[2]*xf, row[3]*yf
		box := model.Box{
			X1: float64(cx - w/2),
			Y1: float64(cy - h/2),
			X2: float64(cx + w/2),
			Y2: float64(cy + h/2),
		}
		rects = append(rects, image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)))
		scores = append(scores, conf)
		dets = append(dets, model.Detection{Box: box, ClassID: classID, Confidence: conf})
	}

	if len(dets) == 0 {
		return nil
	}

	keep := gocv.NMSBoxes(rects, scores, y.confThr, y.iouThr)
	out := make([]model.Detection, 0, len(keep))
	for _, idx := range keep {
		out = append(out, dets[idx])
	}
	return out
}

func (y *yolo5) close() error {
	return y.net.Close()
}
