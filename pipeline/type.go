package pipeline

import (
	"time"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/config"
	"github.com/khaledhikmat/vs-counter/service/data"
	"github.com/khaledhikmat/vs-counter/service/inference"
	"github.com/khaledhikmat/vs-counter/service/source"
	"github.com/khaledhikmat/vs-counter/service/storage"
	"github.com/khaledhikmat/vs-counter/service/webhook"
	"gocv.io/x/gocv"
)

const (
	ReadBackoff = 20 * time.Millisecond
	LoopYield   = time.Millisecond
)

type ServicesFactory struct {
	CfgSvc       config.IService
	SourceSvc    source.IService
	InferenceSvc inference.IService
	StorageSvc   storage.IService
	DataSvc      data.IService
	WebhookSvc   webhook.IService
}

type FrameData struct {
	Mat       gocv.Mat
	Timestamp time.Time
}

// CountHandler receives the crossing events of one frame. It runs on the
// pipeline goroutine and must return quickly.
type CountHandler func(events []model.CrossingEvent)

type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}
