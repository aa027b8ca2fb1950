package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-counter/mode"
	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/pipeline"
	"github.com/khaledhikmat/vs-counter/service/config"
	"github.com/khaledhikmat/vs-counter/service/data"
	"github.com/khaledhikmat/vs-counter/service/inference"
	"github.com/khaledhikmat/vs-counter/service/lgr"
	"github.com/khaledhikmat/vs-counter/service/source"
	"github.com/khaledhikmat/vs-counter/service/storage"
	"github.com/khaledhikmat/vs-counter/service/webhook"
)

const (
	// WARNING: this has to be bigger than the mode processor shutdown time
	shutdownGrace = 3 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"headless": mode.Headless,
	"display":  mode.Display,
}

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		lgr.Logger.Info("loading env vars from .env file")
		err := godotenv.Load()
		if err != nil {
			// Not fatal: every setting has a default
			lgr.Logger.Warn("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
		}
	}

	modeType := "headless"
	args := os.Args[1:]
	if len(args) > 0 {
		modeType = args[0]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		panic("invalid mode")
	}

	// Config service
	cfgSvc := config.NewEnv()

	logParams := cfgSvc.GetLogParameters()
	lgr.Setup(lgr.Options{
		Level: logParams.Level,
		File:  logParams.File,
	})

	svcs, names, err := newServices(cfgSvc)
	if err != nil {
		lgr.Logger.Error("error creating services", slog.Any("error", xerrors.New(err.Error())))
		panic("error creating services")
	}
	defer svcs.InferenceSvc.Close()
	defer svcs.DataSvc.Close()

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	if modeType == "display" {
		// The window has to live on the main goroutine
		modeProcResult <- modeProc(canxCtx, svcs, names)
	} else {
		go func() {
			modeProcResult <- modeProc(canxCtx, svcs, names)
		}()
	}

	// Wait for cancellation or mode proc
	var (
		procErr  error
		procDone bool
	)
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"counter context cancelled",
		)

	case procErr = <-modeProcResult:
		procDone = true
	}

	// Cancel the context if not already cancelled
	if canxCtx.Err() == nil {
		canxFn()
	}

	if !procDone {
		lgr.Logger.Info(
			"counter is waiting for the mode processor to exit",
		)

		period := cfgSvc.GetModeMaxShutdownTime() + cfgSvc.GetStopTimeout() + shutdownGrace
		timer := time.NewTimer(period)
		defer timer.Stop()

		select {
		case <-timer.C:
			lgr.Logger.Info(
				"counter shutdown waiting period expired. Exiting now",
				slog.Duration("period", period),
			)
		case procErr = <-modeProcResult:
		}
	}

	if procErr != nil {
		lgr.Logger.Info(
			"counter mode processor exited",
			slog.Any("error", xerrors.New(procErr.Error())),
		)
	}
}

// newServices builds the services the mode processors run on. They can be
// swapped for other implementations of the same interfaces.
func newServices(cfgSvc config.IService) (pipeline.ServicesFactory, model.ClassNames, error) {
	detector := cfgSvc.GetDetectorParameters()

	names := model.CocoNames
	if detector.LabelsPath != "" {
		loaded, err := model.LoadClassNames(detector.LabelsPath)
		if err != nil {
			lgr.Logger.Warn(
				"using built-in class names",
				slog.String("path", detector.LabelsPath),
				slog.Any("error", err),
			)
		} else {
			names = loaded
		}
	}

	// Source service
	var sourceSvc source.IService
	switch cfgSvc.GetSourceType() {
	case "synthetic":
		sourceSvc = source.NewSynthetic(float64(cfgSvc.GetStreamParameters().FPS))
	default:
		sourceSvc = source.NewCapture(cfgSvc)
	}

	// Inference service
	inferenceSvc, err := inference.New(detector, names)
	if err != nil {
		return pipeline.ServicesFactory{}, nil, err
	}

	// Data service
	dataSvc, err := data.New(cfgSvc)
	if err != nil {
		inferenceSvc.Close()
		return pipeline.ServicesFactory{}, nil, err
	}

	// Webhook service
	webhookSvc := webhook.NewFake(cfgSvc)
	if cfgSvc.GetWebhookURL() != "" {
		webhookSvc = webhook.NewHTTP(cfgSvc)
	}

	return pipeline.ServicesFactory{
		CfgSvc:       cfgSvc,
		SourceSvc:    sourceSvc,
		InferenceSvc: inferenceSvc,
		StorageSvc:   storage.NewDays(cfgSvc),
		DataSvc:      dataSvc,
		WebhookSvc:   webhookSvc,
	}, names, nil
}
