package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/lgr"
	"gocv.io/x/gocv"
)

// WARNING:
// gocv writes through the OpenCV VideoWriter, which may produce large files
// depending on the codecs available in the OpenCV build.
const (
	recorderBuffer = 100
	recorderCodec  = "avc1"
	fallbackCodec  = "mp4v"
)

var ErrWriterNotOpened = errors.New("no codec could open the video writer")

// Recorder writes annotated frames to an MP4 file in the day folder. Frames
// are handed over without blocking; they are dropped while the buffer is full.
type Recorder struct {
	svcs        ServicesFactory
	props       model.Properties
	errorStream chan interface{}
	statsStream chan interface{}

	in        chan FrameData
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	dropped int
}

func NewRecorder(canx context.Context, svcs ServicesFactory, props model.Properties, errorStream, statsStream chan interface{}) *Recorder {
	r := &Recorder{
		svcs:        svcs,
		props:       props,
		errorStream: errorStream,
		statsStream: statsStream,
		in:          make(chan FrameData, recorderBuffer),
		done:        make(chan struct{}),
	}
	go r.run(canx)
	return r
}

// Submit queues a clone of frame. It reports false when the frame was dropped.
func (r *Recorder) Submit(frame gocv.Mat) bool {
	clone := frame.Clone()
	select {
	case r.in <- FrameData{Mat: clone, Timestamp: time.Now()}:
		return true
	default:
		clone.Close()
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return false
	}
}

// Close flushes queued frames and finalizes the file. Submit must not be
// called afterwards.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.in) })
	<-r.done
}

func (r *Recorder) run(canx context.Context) {
	defer close(r.done)

	var (
		writer    *gocv.VideoWriter
		filename  string
		size      image.Point
		frames    = 0
		errors    = 0
		beginTime = time.Now()
	)

	defer func() {
		if writer != nil {
			writer.Close()
			lgr.Logger.Info("recording saved", slog.String("file", filename), slog.Int("frames", frames))
		}
		r.mu.Lock()
		dropped := r.dropped
		r.mu.Unlock()
		emit(r.statsStream, model.RecorderStats{
			Name:    "mp4Recorder",
			File:    filename,
			Frames:  frames,
			Dropped: dropped,
			Errors:  errors,
			Uptime:  int64(time.Since(beginTime).Seconds()),
		})
	}()

	// disabled is set once the writer fails to open; later frames are dropped
	disabled := false

	proc := func(f FrameData) (bool, error) {
		defer f.Mat.Close()
		if f.Mat.Empty() {
			return false, nil
		}
		if disabled {
			r.mu.Lock()
			r.dropped++
			r.mu.Unlock()
			return false, nil
		}

		if writer == nil {
			var err error
			writer, filename, err = r.open(f.Mat, f.Timestamp)
			if err != nil {
				disabled = true
				lgr.Logger.Error("recording disabled for this run", slog.Any("error", err))
				return false, err
			}
			size = image.Pt(f.Mat.Cols(), f.Mat.Rows())
		}

		if f.Mat.Cols() != size.X || f.Mat.Rows() != size.Y {
			resized := gocv.NewMat()
			defer resized.Close()
			if err := gocv.Resize(f.Mat, &resized, size, 0, 0, gocv.InterpolationLinear); err != nil {
				return false, err
			}
			return true, writer.Write(resized)
		}
		return true, writer.Write(f.Mat)
	}

	handle := func(f FrameData) {
		written, err := proc(f)
		if err != nil {
			errors++
			emit(r.errorStream, model.GenError("mp4_recorder", err, map[string]interface{}{"file": filename}, "error writing frame"))
			return
		}
		if written {
			frames++
		}
	}

	for {
		select {
		case <-canx.Done():
			// Drain what was queued before the cancellation
			for f := range r.in {
				handle(f)
			}
			return
		case f, ok := <-r.in:
			if !ok {
				return
			}
			handle(f)
		}
	}
}

func (r *Recorder) open(first gocv.Mat, at time.Time) (*gocv.VideoWriter, string, error) {
	filename, err := r.svcs.StorageSvc.VideoPath(at)
	if err != nil {
		return nil, "", err
	}

	fps := r.props.FPS
	if fps <= 0 {
		fps = 30
	}

	writer, err := gocv.VideoWriterFile(filename, recorderCodec, fps, first.Cols(), first.Rows(), true)
	if err != nil || !writer.IsOpened() {
		if writer != nil {
			writer.Close()
		}
		lgr.Logger.Warn("falling back to mp4v codec", slog.String("file", filename), slog.Any("error", err))
		writer, err = gocv.VideoWriterFile(filename, fallbackCodec, fps, first.Cols(), first.Rows(), true)
	}
	if err != nil {
		if writer != nil {
			writer.Close()
		}
		return nil, "", fmt.Errorf("creating video writer %s: %w", filename, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, "", fmt.Errorf("creating video writer %s: %w", filename, ErrWriterNotOpened)
	}

	lgr.Logger.Info("recording started", slog.String("file", filename), slog.Float64("fps", fps))
	return writer, filename, nil
}
