package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-counter/counter"
	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/publisher"
	"github.com/khaledhikmat/vs-counter/service/lgr"
	"github.com/khaledhikmat/vs-counter/service/source"
)

// Pipeline reads frames from a source, runs them through the detector and the
// line counter, and publishes the annotated result. Frames are handled one at
// a time in acquisition order.
type Pipeline struct {
	svcs        ServicesFactory
	pub         *publisher.Publisher
	names       model.ClassNames
	tracer      trace.Tracer
	errorStream chan interface{}
	statsStream chan interface{}
	readBackoff time.Duration
	loopYield   time.Duration

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex

	mu       sync.Mutex
	state    State
	run      *run
	err      error
	props    model.Properties
	onCount  CountHandler
	handlers []CountHandler

	counterMu sync.Mutex
	counter   *counter.Counter
}

type run struct {
	id      string
	spec    string
	src     source.Source
	cancel  context.CancelFunc
	done    chan struct{}
	release sync.Once
}

func (r *run) releaseSource() {
	r.release.Do(func() {
		if err := r.src.Close(); err != nil {
			lgr.Logger.Warn("error releasing source", slog.String("runId", r.id), slog.Any("error", err))
		}
	})
}

type Option func(*Pipeline)

// WithTracer wraps every detector call in a span from t.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

func WithClassNames(names model.ClassNames) Option {
	return func(p *Pipeline) { p.names = names }
}

// WithTiming overrides the read backoff and the per-iteration yield.
func WithTiming(readBackoff, loopYield time.Duration) Option {
	return func(p *Pipeline) {
		p.readBackoff = readBackoff
		p.loopYield = loopYield
	}
}

func New(svcs ServicesFactory, pub *publisher.Publisher, errorStream, statsStream chan interface{}, opts ...Option) *Pipeline {
	p := &Pipeline{
		svcs:        svcs,
		pub:         pub,
		names:       model.CocoNames,
		tracer:      noop.NewTracerProvider().Tracer("pipeline"),
		errorStream: errorStream,
		statsStream: statsStream,
		readBackoff: ReadBackoff,
		loopYield:   LoopYield,
		counter: counter.NewWithPolicy(
			svcs.CfgSvc.GetDefaultLine(),
			counter.OnLinePolicy(svcs.CfgSvc.GetOnLinePolicy()),
		),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start opens the configured source and launches the loop. Starting a
// running pipeline does nothing. On failure the pipeline stays idle.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.State() == Running {
		return nil
	}

	spec := p.svcs.CfgSvc.GetInputSource()
	src, err := p.svcs.SourceSvc.Open(spec)
	if err != nil {
		return fmt.Errorf("pipeline start: %w", err)
	}
	// Tracks do not survive across runs
	p.svcs.InferenceSvc.Reset()

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:     uuid.NewString(),
		spec:   spec,
		src:    src,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	p.state = Running
	p.run = r
	p.err = nil
	p.props = src.Properties()
	p.mu.Unlock()

	lgr.Logger.Info(
		"pipeline starting",
		slog.String("runId", r.id),
		slog.String("source", spec),
		slog.Any("line", p.Line()),
	)

	go p.loop(runCtx, r)
	return nil
}

// Stop cancels the running loop and waits up to the configured stop timeout.
// The source is released even when the loop does not exit in time. Stopping
// an idle pipeline does nothing.
func (p *Pipeline) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	r := p.run
	p.mu.Unlock()
	if r == nil {
		return
	}

	r.cancel()
	timer := time.NewTimer(p.svcs.CfgSvc.GetStopTimeout())
	defer timer.Stop()

	select {
	case <-r.done:
	case <-timer.C:
		lgr.Logger.Warn(
			"pipeline loop did not exit in time, releasing source anyway",
			slog.String("runId", r.id),
			slog.Duration("timeout", p.svcs.CfgSvc.GetStopTimeout()),
		)
		r.releaseSource()
	}

	p.mu.Lock()
	if p.run == r {
		p.run = nil
		p.state = Idle
	}
	p.mu.Unlock()

	lgr.Logger.Info("pipeline stopped", slog.String("runId", r.id))
}

func (p *Pipeline) loop(ctx context.Context, r *run) {
	var (
		startTime      = time.Now()
		frames         = 0
		readErrors     = 0
		detectorErrors = 0
		crossings      = 0
		totalDetect    time.Duration
		runErr         error
	)

	recorder := p.startRecorder(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			runErr = model.GenError("pipeline", fmt.Errorf("%v", rec), map[string]interface{}{"runId": r.id}, "pipeline loop panic")
		}
		if recorder != nil {
			recorder.Close()
		}
		r.releaseSource()

		uptime := int64(time.Since(startTime).Seconds())
		stats := model.PipelineStats{
			Name:           "pipeline",
			RunID:          r.id,
			Source:         r.spec,
			Frames:         frames,
			ReadErrors:     readErrors,
			DetectorErrors: detectorErrors,
			Crossings:      crossings,
			Uptime:         uptime,
		}
		if uptime > 0 {
			stats.FPS = frames / int(uptime)
		}
		if frames > 0 {
			stats.AvgProcTime = totalDetect.Seconds() / float64(frames)
		}
		emit(p.statsStream, stats)

		p.finish(r, runErr)
	}()

	img := gocv.NewMat()
	defer img.Close()

	for {
		select {
		case <-ctx.Done():
			lgr.Logger.Info("pipeline context cancelled", slog.String("runId", r.id))
			return
		default:
		}

		if ok := r.src.Read(&img); !ok || img.Empty() {
			readErrors++
			lgr.Logger.Debug("frame read failed, retrying", slog.String("runId", r.id), slog.Int("readErrors", readErrors))
			if !sleep(ctx, p.readBackoff) {
				return
			}
			continue
		}
		frames++

		begin := time.Now()
		annotated, dets, failures, err := p.detect(ctx, img, frames)
		totalDetect += time.Since(begin)
		detectorErrors += failures
		if ctx.Err() != nil {
			// Stopped while detecting; the frame belongs to an abandoned run
			annotated.Close()
			return
		}
		if err != nil {
			annotated.Close()
			runErr = model.GenError("pipeline", err,
				map[string]interface{}{"runId": r.id, "frame": frames},
				"detector failed after %d attempts", failures)
			emit(p.errorStream, runErr)
			return
		}

		events, counts := p.update(dets)
		crossings += len(events)
		if len(events) > 0 {
			p.dispatch(events)
		}

		drawOverlay(&annotated, p.Line(), counts, p.names)
		p.pub.Publish(annotated, counts)
		if recorder != nil {
			recorder.Submit(annotated)
		}
		annotated.Close()

		if !sleep(ctx, p.loopYield) {
			return
		}
	}
}

// detect calls the detector on frame, retrying the same frame up to the
// configured number of times. It returns the number of failed attempts.
func (p *Pipeline) detect(ctx context.Context, frame gocv.Mat, seq int) (gocv.Mat, []model.Detection, int, error) {
	retries := p.svcs.CfgSvc.GetDetectorRetries()
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	failures := 0
	for attempt := 0; attempt <= retries; attempt++ {
		_, span := p.tracer.Start(ctx, "detect_and_track", trace.WithAttributes(
			attribute.Int("frame", seq),
			attribute.Int("attempt", attempt),
		))

		annotated, dets, err := p.svcs.InferenceSvc.DetectAndTrack(frame)
		if err == nil {
			span.SetAttributes(attribute.Int("detections", len(dets)))
			span.End()
			return annotated, dets, failures, nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		annotated.Close()

		failures++
		lastErr = err
		lgr.Logger.Warn(
			"detector call failed",
			slog.Int("frame", seq),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	return gocv.NewMat(), nil, failures, lastErr
}

func (p *Pipeline) update(dets []model.Detection) ([]model.CrossingEvent, model.Counts) {
	p.counterMu.Lock()
	defer p.counterMu.Unlock()
	events := p.counter.Update(dets)
	return events, p.counter.Counts()
}

// dispatch invokes the single-slot callback, then the extra handlers in
// registration order. No lock is held while they run.
func (p *Pipeline) dispatch(events []model.CrossingEvent) {
	p.mu.Lock()
	handlers := make([]CountHandler, 0, len(p.handlers)+1)
	if p.onCount != nil {
		handlers = append(handlers, p.onCount)
	}
	handlers = append(handlers, p.handlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					lgr.Logger.Error("count handler panic recovered", slog.Any("panic", rec))
				}
			}()
			h(events)
		}()
	}
}

func (p *Pipeline) finish(r *run, err error) {
	p.mu.Lock()
	if p.run == r {
		p.run = nil
		p.state = Idle
	}
	if err != nil {
		p.err = err
	}
	p.mu.Unlock()
	close(r.done)

	if err != nil {
		lgr.Logger.Error("pipeline run ended with error", slog.String("runId", r.id), slog.Any("error", err))
	}
}

func (p *Pipeline) startRecorder(ctx context.Context) *Recorder {
	if !p.svcs.CfgSvc.GetRecordVideo() || p.svcs.StorageSvc == nil {
		return nil
	}
	return NewRecorder(ctx, p.svcs, p.Properties(), p.errorStream, p.statsStream)
}

// OnCount sets the single-slot count callback, replacing any previous one.
// A nil callback clears it.
func (p *Pipeline) OnCount(cb CountHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCount = cb
}

// AddCountHandler registers an extra subscriber invoked after OnCount's.
func (p *Pipeline) AddCountHandler(cb CountHandler) {
	if cb == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, cb)
}

// SetLine replaces the counting line, keeping the current direction filter.
// Per-track crossing memory is cleared; counts are kept.
func (p *Pipeline) SetLine(x1, y1, x2, y2 float64) {
	line := p.Line()
	line.X1, line.Y1, line.X2, line.Y2 = x1, y1, x2, y2
	p.SetLineObject(line)
}

func (p *Pipeline) SetLineObject(line model.Line) {
	if line.Direction == "" {
		line.Direction = model.DirectionBoth
	}
	p.counterMu.Lock()
	p.counter.SetLine(line)
	p.counterMu.Unlock()

	lgr.Logger.Info("counting line replaced", slog.Any("line", line))
}

// ResetCounts clears counts and per-track memory.
func (p *Pipeline) ResetCounts() {
	p.counterMu.Lock()
	defer p.counterMu.Unlock()
	p.counter.Reset()
}

func (p *Pipeline) Line() model.Line {
	p.counterMu.Lock()
	defer p.counterMu.Unlock()
	return p.counter.Line()
}

func (p *Pipeline) Counts() model.Counts {
	p.counterMu.Lock()
	defer p.counterMu.Unlock()
	return p.counter.Counts()
}

func (p *Pipeline) Total() int {
	p.counterMu.Lock()
	defer p.counterMu.Unlock()
	return p.counter.Total()
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Properties of the source opened by the latest Start.
func (p *Pipeline) Properties() model.Properties {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.props
}

// Err is the error that ended the latest run, if any. Start clears it.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// RunID is empty while idle.
func (p *Pipeline) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		return ""
	}
	return p.run.id
}

// Done is closed when the current run's loop exits; nil while idle.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		return nil
	}
	return p.run.done
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// emit sends v without blocking the caller; a full or nil stream drops it.
func emit(stream chan interface{}, v interface{}) {
	if stream == nil {
		return
	}
	select {
	case stream <- v:
	default:
		lgr.Logger.Warn("stream full, dropping", slog.String("type", fmt.Sprintf("%T", v)))
	}
}
