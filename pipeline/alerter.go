package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/lgr"
	"github.com/natefinch/lumberjack"
)

const alerterBuffer = 256

type crossingAlert struct {
	Timestamp time.Time       `json:"timestamp"`
	TrackID   int             `json:"trackId"`
	ClassID   int             `json:"classId"`
	ClassName string          `json:"className"`
	Direction model.Direction `json:"direction"`
}

// CrossingAlerter returns a count handler that hands events to a background
// goroutine. The goroutine appends each event as a JSON line to the rotating
// crossings log (when logFile is set) and posts it to the webhook service.
// Events are dropped when the goroutine falls behind.
func CrossingAlerter(canx context.Context, svcs ServicesFactory, names model.ClassNames, logFile string, errorStream chan interface{}) CountHandler {
	in := make(chan crossingAlert, alerterBuffer)

	var crossingsLog *lumberjack.Logger
	if logFile != "" {
		crossingsLog = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7, // days
			Compress:   true,
		}
	}

	go func() {
		defer func() {
			if crossingsLog != nil {
				crossingsLog.Close()
			}
		}()

		for {
			select {
			case <-canx.Done():
				lgr.Logger.Info("alerter context cancelled")
				return

			case alert := <-in:
				if crossingsLog != nil {
					line, err := json.Marshal(alert)
					if err == nil {
						_, err = crossingsLog.Write(append(line, '\n'))
					}
					if err != nil {
						lgr.Logger.Error("error writing crossings log", slog.Any("error", err))
					}
				}

				if svcs.WebhookSvc == nil {
					continue
				}
				err := svcs.WebhookSvc.Post(map[string]interface{}{
					"trackId":   alert.TrackID,
					"classId":   alert.ClassID,
					"className": alert.ClassName,
					"direction": alert.Direction,
					"timestamp": alert.Timestamp.Format(time.RFC3339),
				})
				if err != nil {
					emit(errorStream, model.GenError("crossing_alerter", err, map[string]interface{}{"trackId": alert.TrackID}, "error posting crossing webhook"))
				}
			}
		}
	}()

	return func(events []model.CrossingEvent) {
		now := time.Now()
		for _, e := range events {
			select {
			case in <- crossingAlert{
				Timestamp: now,
				TrackID:   e.TrackID,
				ClassID:   e.ClassID,
				ClassName: names.Name(e.ClassID),
				Direction: e.Direction,
			}:
			default:
				lgr.Logger.Warn("alerter full, dropping crossing", slog.Int("trackId", e.TrackID))
			}
		}
	}
}
