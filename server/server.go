// Package server exposes the MJPEG stream and the control API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/khaledhikmat/vs-counter/ledger"
	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/pipeline"
	"github.com/khaledhikmat/vs-counter/service/config"
	"github.com/khaledhikmat/vs-counter/service/data"
	"github.com/khaledhikmat/vs-counter/service/lgr"
	"github.com/khaledhikmat/vs-counter/service/storage"
)

const shutdownTimeout = 3 * time.Second

// Controller is the part of the pipeline the API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	State() pipeline.State
	RunID() string
	Err() error
	Properties() model.Properties
	Line() model.Line
	SetLineObject(line model.Line)
	Counts() model.Counts
	Total() int
	ResetCounts()
}

// Streamer serves the video route and reports its connected clients.
type Streamer interface {
	Handle(c *gin.Context)
	Clients() int
}

type Server struct {
	CfgSvc     config.IService
	StorageSvc storage.IService
	DataSvc    data.IService

	// base is the process context; runs started over HTTP outlive the request
	base   context.Context
	ctl    Controller
	ledger *ledger.Ledger
	stream Streamer
	names  model.ClassNames
	router *gin.Engine
}

func New(base context.Context, svcs pipeline.ServicesFactory, ctl Controller, l *ledger.Ledger, stream Streamer, names model.ClassNames) *Server {
	if names == nil {
		names = model.CocoNames
	}
	s := &Server{
		CfgSvc:     svcs.CfgSvc,
		StorageSvc: svcs.StorageSvc,
		DataSvc:    svcs.DataSvc,
		base:       base,
		ctl:        ctl,
		ledger:     l,
		stream:     stream,
		names:      names,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/video", s.stream.Handle)

	api := r.Group("/api")
	api.GET("/status", s.status)
	api.GET("/counts", s.counts)
	api.GET("/history", s.history)
	api.GET("/history/snapshots", s.snapshots)
	api.GET("/line", s.getLine)
	api.PUT("/line", s.putLine)
	api.POST("/reset", s.reset)
	api.POST("/start", s.start)
	api.POST("/stop", s.stop)
	api.GET("/export", s.export)
	api.GET("/recordings", s.listDays)
	api.GET("/recordings/:day", s.listVideos)
	api.GET("/recordings/:day/:file", s.download)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	params := s.CfgSvc.GetStreamParameters()
	srv := &http.Server{
		Addr:              net.JoinHostPort(params.Host, strconv.Itoa(params.Port)),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		lgr.Logger.Info("http server listening", slog.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Stream clients never finish on their own
		lgr.Logger.Warn("http server shutdown timed out, closing", slog.Any("error", err))
		return srv.Close()
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		begin := time.Now()
		c.Next()
		lgr.Logger.Debug(
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(begin)),
		)
	}
}
