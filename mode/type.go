package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/pipeline"
	"github.com/khaledhikmat/vs-counter/service/data"
	"github.com/khaledhikmat/vs-counter/service/lgr"
)

type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, names model.ClassNames) error

func procStats(datasvc data.IService, stats interface{}) {
	switch stats := stats.(type) {
	case model.PipelineStats:
		procPipelineStats(datasvc, stats)
	case model.StreamStats:
		procStreamStats(datasvc, stats)
	case model.RecorderStats:
		procRecorderStats(datasvc, stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func procPipelineStats(datasvc data.IService, stats model.PipelineStats) {
	lgr.Logger.Info(
		"pipeline run ended",
		slog.String("runId", stats.RunID),
		slog.Int("frames", stats.Frames),
	)
	err := datasvc.NewPipelineStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store pipeline stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procStreamStats(datasvc data.IService, stats model.StreamStats) {
	err := datasvc.NewStreamStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store stream stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procRecorderStats(datasvc data.IService, stats model.RecorderStats) {
	err := datasvc.NewRecorderStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store recorder stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	lgr.Logger.Error(
		"processor error",
		slog.Any("error", err),
	)
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
