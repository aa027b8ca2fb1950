package mode

import (
	"context"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/pipeline"
	"github.com/khaledhikmat/vs-counter/service/lgr"
)

const windowName = "vs-counter"

// Display does what Headless does and also shows the annotated feed in a
// local window. Pressing q or Esc in the window shuts everything down.
// It must be called from the main goroutine on platforms whose GUI needs it.
func Display(canxCtx context.Context, svcs pipeline.ServicesFactory, names model.ClassNames) error {
	ctx, cancel := context.WithCancel(canxCtx)
	defer cancel()

	a := newApp(ctx, svcs, names)
	result := make(chan error, 1)
	go func() {
		result <- a.serve(ctx)
	}()

	window := gocv.NewWindow(windowName)
	defer window.Close()

	refresh := svcs.CfgSvc.GetDisplayRefresh()
	if refresh <= 0 {
		refresh = 30 * time.Millisecond
	}
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return <-result

		case err := <-result:
			return err

		case <-ticker.C:
			frame, _, ok := a.pub.Read()
			if ok {
				window.IMShow(frame)
			}
			frame.Close()

			if key := window.WaitKey(1); key == 'q' || key == 27 {
				lgr.Logger.Info("display closed by user", slog.Int("key", key))
				cancel()
			}
		}
	}
}
