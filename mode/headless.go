package mode

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/khaledhikmat/vs-counter/ledger"
	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/pipeline"
	"github.com/khaledhikmat/vs-counter/publisher"
	"github.com/khaledhikmat/vs-counter/server"
	"github.com/khaledhikmat/vs-counter/service/lgr"
	"github.com/khaledhikmat/vs-counter/stream"
)

const streamsBuffer = 64

// app is everything a processor wires around one pipeline.
type app struct {
	svcs        pipeline.ServicesFactory
	names       model.ClassNames
	pub         *publisher.Publisher
	ledger      *ledger.Ledger
	pipe        *pipeline.Pipeline
	server      *server.Server
	errorStream chan interface{}
	statsStream chan interface{}
}

func newApp(canxCtx context.Context, svcs pipeline.ServicesFactory, names model.ClassNames) *app {
	if names == nil {
		names = model.CocoNames
	}

	// Streams are never closed: emitters drop instead of blocking, and some
	// (stream clients, the recorder) may still report during shutdown.
	a := &app{
		svcs:        svcs,
		names:       names,
		pub:         publisher.New(),
		ledger:      ledger.New().WithSink(svcs.DataSvc),
		errorStream: make(chan interface{}, streamsBuffer),
		statsStream: make(chan interface{}, streamsBuffer),
	}

	a.pipe = pipeline.New(svcs, a.pub, a.errorStream, a.statsStream,
		pipeline.WithClassNames(names),
		pipeline.WithTracer(otel.Tracer("github.com/khaledhikmat/vs-counter/pipeline")),
	)
	a.pipe.OnCount(func(events []model.CrossingEvent) {
		a.ledger.AddEvents(events, names)
	})
	a.pipe.AddCountHandler(pipeline.CrossingAlerter(canxCtx, svcs, names, svcs.CfgSvc.GetLogParameters().CrossingsLog, a.errorStream))

	params := svcs.CfgSvc.GetStreamParameters()
	dist := stream.New(a.pub, params.Quality, params.FPS, a.statsStream)
	a.server = server.New(canxCtx, svcs, a.pipe, a.ledger, dist, names)
	return a
}

// Headless runs the pipeline and serves the stream and API until canxCtx is
// cancelled or the HTTP server fails.
func Headless(canxCtx context.Context, svcs pipeline.ServicesFactory, names model.ClassNames) error {
	return newApp(canxCtx, svcs, names).serve(canxCtx)
}

func (a *app) serve(canxCtx context.Context) error {
	serverResult := make(chan error, 1)
	go func() {
		serverResult <- a.server.Run(canxCtx)
	}()

	if err := a.pipe.Start(canxCtx); err != nil {
		// The API stays up so the run can be started later
		procError(a.svcs.DataSvc, model.GenError("headless",
			err,
			map[string]interface{}{},
			"error starting pipeline"))
	}

	var snapshots <-chan time.Time
	if interval := a.svcs.CfgSvc.GetHistoryInterval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		snapshots = ticker.C
	}

	var serverErr error
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"headless context cancelled",
			)
			goto resume

		case serverErr = <-serverResult:
			serverResult = nil
			if serverErr != nil {
				procError(a.svcs.DataSvc, model.GenError("headless",
					serverErr,
					map[string]interface{}{},
					"http server exited"))
			}
			goto resume

		case at := <-snapshots:
			a.snapshot(at)

		case s := <-a.statsStream:
			procStats(a.svcs.DataSvc, s)

		case e := <-a.errorStream:
			procError(a.svcs.DataSvc, e)
		}
	}

	// Wait in a non-blocking way for the routines to report while exiting
resume:
	a.pipe.Stop()
	a.snapshot(time.Now())
	a.pub.Close()

	lgr.Logger.Info(
		"headless is waiting for all go routines to exit",
	)

	timer := time.NewTimer(a.svcs.CfgSvc.GetModeMaxShutdownTime())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"headless shutdown waiting period expired. Exiting now",
				slog.Duration("period", a.svcs.CfgSvc.GetModeMaxShutdownTime()),
			)
			return serverErr

		case err := <-serverResult:
			serverResult = nil
			if err != nil {
				serverErr = err
			}

		case s := <-a.statsStream:
			procStats(a.svcs.DataSvc, s)

		case e := <-a.errorStream:
			procError(a.svcs.DataSvc, e)
		}
	}
}

func (a *app) snapshot(at time.Time) {
	path := filepath.Join(a.svcs.CfgSvc.GetExportFolder(), a.svcs.CfgSvc.GetHistoryFile())
	err := ledger.AppendSnapshot(path, at, a.pipe.Counts(), a.names)
	if err != nil {
		procError(a.svcs.DataSvc, model.GenError("headless",
			err,
			map[string]interface{}{"path": path},
			"error appending count snapshot"))
	}
}
