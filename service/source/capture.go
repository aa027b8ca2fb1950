package source

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/config"
	"github.com/khaledhikmat/vs-counter/service/lgr"
	"gocv.io/x/gocv"
)

type captureService struct {
	CfgSvc config.IService
}

type capture struct {
	vc   *gocv.VideoCapture
	spec string
}

// NewCapture opens cameras, files and stream URLs through gocv.VideoCapture.
func NewCapture(cfgsvc config.IService) IService {
	return &captureService{
		CfgSvc: cfgsvc,
	}
}

func (svc *captureService) Open(spec string) (Source, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)

	switch {
	case spec == "":
		spec = strconv.Itoa(svc.CfgSvc.GetCameraIndex())
		vc, err = gocv.OpenVideoCapture(svc.CfgSvc.GetCameraIndex())
	default:
		// A purely numeric spec is a camera index
		if idx, convErr := strconv.Atoi(spec); convErr == nil {
			vc, err = gocv.OpenVideoCapture(idx)
		} else {
			vc, err = gocv.OpenVideoCapture(spec)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, spec, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, spec)
	}

	c := &capture{vc: vc, spec: spec}
	p := c.Properties()
	lgr.Logger.Info(
		"source opened",
		slog.String("source", spec),
		slog.Int("width", p.Width),
		slog.Int("height", p.Height),
		slog.Float64("fps", p.FPS),
	)
	return c, nil
}

func (c *capture) Read(img *gocv.Mat) bool {
	return c.vc.Read(img) && !img.Empty()
}

func (c *capture) Properties() model.Properties {
	return model.Properties{
		Width:  int(c.vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(c.vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    c.vc.Get(gocv.VideoCaptureFPS),
	}
}

func (c *capture) Close() error {
	return c.vc.Close()
}
