package server

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/khaledhikmat/vs-counter/ledger"
	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/lgr"
	"github.com/khaledhikmat/vs-counter/service/storage"
)

type countsResponse struct {
	State   string         `json:"state"`
	RunID   string         `json:"runId"`
	Counts  map[string]int `json:"counts"`
	ByClass model.Counts   `json:"byClass"`
	Total   int            `json:"total"`
}

type lineRequest struct {
	X1        *float64 `json:"x1"`
	Y1        *float64 `json:"y1"`
	X2        *float64 `json:"x2"`
	Y2        *float64 `json:"y2"`
	Direction string   `json:"direction"`
}

func (s *Server) status(c *gin.Context) {
	resp := gin.H{
		"state":      s.ctl.State().String(),
		"runId":      s.ctl.RunID(),
		"properties": s.ctl.Properties(),
		"line":       s.ctl.Line(),
		"clients":    s.stream.Clients(),
	}
	if err := s.ctl.Err(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) counts(c *gin.Context) {
	byClass := s.ctl.Counts()
	named := make(map[string]int, len(byClass))
	for id, n := range byClass {
		named[s.names.Name(id)] += n
	}
	c.JSON(http.StatusOK, countsResponse{
		State:   s.ctl.State().String(),
		RunID:   s.ctl.RunID(),
		Counts:  named,
		ByClass: byClass,
		Total:   byClass.Total(),
	})
}

func (s *Server) history(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}

	switch c.DefaultQuery("source", "ledger") {
	case "ledger":
		records := s.ledger.History()
		if limit > 0 && len(records) > limit {
			records = records[len(records)-limit:]
		}
		c.JSON(http.StatusOK, gin.H{
			"source":  "ledger",
			"totals":  s.ledger.Totals(),
			"total":   s.ledger.Total(),
			"records": records,
		})

	case "store":
		// Persisted crossings outlive /api/reset, so no totals are derived here
		if s.DataSvc == nil {
			writeJSONError(c, http.StatusServiceUnavailable, "no crossing store configured")
			return
		}
		records, err := s.DataSvc.RetrieveCrossings(limit)
		if err != nil {
			lgr.Logger.Error("error retrieving stored crossings", slog.Any("error", err))
			internalServerError(c, "failed to read stored crossings")
			return
		}
		if records == nil {
			records = []model.LedgerRecord{}
		}
		c.JSON(http.StatusOK, gin.H{
			"source":  "store",
			"records": records,
		})

	default:
		badRequest(c, "source must be ledger or store")
	}
}

func (s *Server) snapshots(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	path := filepath.Join(s.CfgSvc.GetExportFolder(), s.CfgSvc.GetHistoryFile())
	rows, err := ledger.ReadSnapshots(path, limit)
	if err != nil {
		lgr.Logger.Error("error reading snapshots", slog.String("path", path), slog.Any("error", err))
		internalServerError(c, "failed to read snapshots")
		return
	}
	if rows == nil {
		rows = []map[string]string{}
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": rows})
}

func (s *Server) getLine(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Line())
}

func (s *Server) putLine(c *gin.Context) {
	var req lineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid line: "+err.Error())
		return
	}
	if req.X1 == nil || req.Y1 == nil || req.X2 == nil || req.Y2 == nil {
		badRequest(c, "x1, y1, x2 and y2 are required")
		return
	}
	if *req.X1 == *req.X2 && *req.Y1 == *req.Y2 {
		badRequest(c, "line endpoints must differ")
		return
	}

	dir := s.ctl.Line().Direction
	if req.Direction != "" {
		d, err := model.ParseDirection(req.Direction)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		dir = d
	}

	line := model.Line{X1: *req.X1, Y1: *req.Y1, X2: *req.X2, Y2: *req.Y2, Direction: dir}
	s.ctl.SetLineObject(line)
	c.JSON(http.StatusOK, line)
}

func (s *Server) reset(c *gin.Context) {
	s.ctl.ResetCounts()
	s.ledger.Clear()
	c.JSON(http.StatusOK, gin.H{"total": 0})
}

func (s *Server) start(c *gin.Context) {
	if err := s.ctl.Start(s.base); err != nil {
		lgr.Logger.Error("error starting pipeline", slog.Any("error", err))
		writeJSONError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.ctl.State().String(), "runId": s.ctl.RunID()})
}

func (s *Server) stop(c *gin.Context) {
	s.ctl.Stop()
	c.JSON(http.StatusOK, gin.H{"state": s.ctl.State().String()})
}

func (s *Server) export(c *gin.Context) {
	format, err := ledger.ParseFormat(c.DefaultQuery("format", string(ledger.FormatCSV)))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	path, err := s.StorageSvc.CountsPath(time.Now(), string(format))
	if err != nil {
		lgr.Logger.Error("error preparing export path", slog.Any("error", err))
		internalServerError(c, "failed to prepare export")
		return
	}
	if err := s.ledger.Export(format, path); err != nil {
		lgr.Logger.Error("error exporting counts", slog.Any("error", err))
		internalServerError(c, "failed to export counts")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (s *Server) listDays(c *gin.Context) {
	days, err := s.StorageSvc.ListDays()
	if err != nil {
		lgr.Logger.Error("error listing days", slog.Any("error", err))
		internalServerError(c, "failed to list recordings")
		return
	}
	if days == nil {
		days = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func (s *Server) listVideos(c *gin.Context) {
	videos, err := s.StorageSvc.ListVideos(c.Param("day"))
	if errors.Is(err, storage.ErrNotFound) {
		notFound(c, "day not found")
		return
	}
	if err != nil {
		lgr.Logger.Error("error listing videos", slog.String("day", c.Param("day")), slog.Any("error", err))
		internalServerError(c, "failed to list videos")
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": c.Param("day"), "videos": videos})
}

func (s *Server) download(c *gin.Context) {
	path, err := s.StorageSvc.Resolve(c.Param("day"), c.Param("file"))
	if err != nil {
		notFound(c, "recording not found")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
