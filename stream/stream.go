// Package stream serves the latest published frame to HTTP clients as an
// MJPEG multipart stream. Every client runs its own sampling loop, so a slow
// client only delays itself.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/publisher"
	"github.com/khaledhikmat/vs-counter/service/lgr"
)

const (
	Boundary    = "frame"
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

	placeholderWidth  = 640
	placeholderHeight = 480
)

type Distributor struct {
	pub         *publisher.Publisher
	quality     int
	interval    time.Duration
	statsStream chan interface{}

	clients atomic.Int64

	placeholderOnce sync.Once
	placeholder     []byte
	placeholderErr  error

	// last encoded frame, shared by clients sampling the same publish
	mu       sync.Mutex
	lastSeq  uint64
	lastJPEG []byte
}

func New(pub *publisher.Publisher, quality, fps int, statsStream chan interface{}) *Distributor {
	if fps <= 0 {
		fps = 30
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Distributor{
		pub:         pub,
		quality:     quality,
		interval:    time.Second / time.Duration(fps),
		statsStream: statsStream,
	}
}

// Handle is the gin route handler.
func (d *Distributor) Handle(c *gin.Context) {
	d.serve(c.Request.Context(), c.Writer, c.Request.RemoteAddr)
}

func (d *Distributor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.serve(r.Context(), w, r.RemoteAddr)
}

// Clients is the number of connected stream clients.
func (d *Distributor) Clients() int {
	return int(d.clients.Load())
}

func (d *Distributor) serve(ctx context.Context, w http.ResponseWriter, remote string) {
	clientID := uuid.NewString()
	d.clients.Add(1)

	var (
		beginTime = time.Now()
		frames    = 0
		errors    = 0
		written   int64
	)

	lgr.Logger.Info("stream client connected", slog.String("clientId", clientID), slog.String("remote", remote))
	defer func() {
		d.clients.Add(-1)
		stats := model.StreamStats{
			Name:     "mjpeg",
			ClientID: clientID,
			Remote:   remote,
			Frames:   frames,
			Bytes:    written,
			Errors:   errors,
			Uptime:   int64(time.Since(beginTime).Seconds()),
		}
		if d.statsStream != nil {
			select {
			case d.statsStream <- stats:
			default:
			}
		}
		lgr.Logger.Info("stream client disconnected", slog.String("clientId", clientID), slog.Int("frames", frames))
	}()

	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		jpg, err := d.latest()
		if err != nil {
			errors++
			lgr.Logger.Warn("error encoding stream frame", slog.String("clientId", clientID), slog.Any("error", err))
		} else {
			n, err := writePart(w, jpg)
			written += int64(n)
			if err != nil {
				lgr.Logger.Debug("stream client write failed", slog.String("clientId", clientID), slog.Any("error", err))
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			frames++
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writePart(w io.Writer, jpg []byte) (int, error) {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(jpg))
	total := 0
	for _, chunk := range [][]byte{[]byte(header), jpg, []byte("\r\n")} {
		n, err := w.Write(chunk)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// latest returns the JPEG of the most recent published frame, or the
// placeholder before anything was published.
func (d *Distributor) latest() ([]byte, error) {
	seq := d.pub.Seq()
	if seq == 0 {
		return d.Placeholder()
	}

	d.mu.Lock()
	if seq == d.lastSeq && d.lastJPEG != nil {
		jpg := d.lastJPEG
		d.mu.Unlock()
		return jpg, nil
	}
	d.mu.Unlock()

	frame, _, ok := d.pub.Read()
	defer frame.Close()
	if !ok {
		return d.Placeholder()
	}

	jpg, err := encode(frame, d.quality)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if seq >= d.lastSeq {
		d.lastSeq = seq
		d.lastJPEG = jpg
	}
	d.mu.Unlock()
	return jpg, nil
}

// Placeholder is a black 640x480 JPEG, encoded once.
func (d *Distributor) Placeholder() ([]byte, error) {
	d.placeholderOnce.Do(func() {
		black := gocv.NewMatWithSize(placeholderHeight, placeholderWidth, gocv.MatTypeCV8UC3)
		defer black.Close()
		d.placeholder, d.placeholderErr = encode(black, d.quality)
	})
	return d.placeholder, d.placeholderErr
}

func encode(img gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	// GetBytes aliases native memory released by Close
	return append([]byte(nil), buf.GetBytes()...), nil
}
