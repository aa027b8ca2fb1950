package source

import (
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-counter/model"
	"gocv.io/x/gocv"
)

const (
	syntheticWidth  = 640
	syntheticHeight = 480
	syntheticFPS    = 30
	blockSize       = 40
)

type syntheticService struct {
	fps float64
}

// synthetic renders white blocks that travel top to bottom over a black
// background. It lets the pipeline run without a camera or a model.
type synthetic struct {
	mu     sync.Mutex
	frames int
	fps    float64
	next   time.Time
	lanes  []lane
	closed bool
}

type lane struct {
	x     int
	speed int // pixels per frame
	phase int
}

// NewSynthetic returns a source service that ignores the spec it is given.
// A zero fps disables pacing.
func NewSynthetic(fps float64) IService {
	return &syntheticService{fps: fps}
}

func (svc *syntheticService) Open(_ string) (Source, error) {
	return &synthetic{
		fps: svc.fps,
		lanes: []lane{
			{x: 120, speed: 6, phase: 0},
			{x: 300, speed: 9, phase: 200},
			{x: 480, speed: 4, phase: 350},
		},
	}, nil
}

func (s *synthetic) Read(img *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	if s.fps > 0 {
		now := time.Now()
		if s.next.After(now) {
			time.Sleep(s.next.Sub(now))
		}
		s.next = time.Now().Add(time.Duration(float64(time.Second) / s.fps))
	}

	frame := gocv.NewMatWithSize(syntheticHeight, syntheticWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for _, l := range s.lanes {
		y := s.blockY(l)
		gocv.Rectangle(&frame, image.Rect(l.x, y, l.x+blockSize, y+blockSize), color.RGBA{255, 255, 255, 0}, -1)
	}
	frame.CopyTo(img)
	s.frames++
	return true
}

// blockY is the top edge of the lane's block for the current frame.
func (s *synthetic) blockY(l lane) int {
	span := syntheticHeight + blockSize
	return (l.phase+s.frames*l.speed)%span - blockSize
}

func (s *synthetic) Properties() model.Properties {
	fps := s.fps
	if fps <= 0 {
		fps = syntheticFPS
	}
	return model.Properties{Width: syntheticWidth, Height: syntheticHeight, FPS: fps}
}

func (s *synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
