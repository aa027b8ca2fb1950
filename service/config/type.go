package config

import (
	"time"

	"github.com/khaledhikmat/vs-counter/model"
)

type DetectorParameters struct {
	Name                string // yolo5 | blob
	ModelPath           string
	LabelsPath          string
	ConfidenceThreshold float32
	IoUThreshold        float32
	Classes             []int // empty means every class
	TrackerMaxAge       int   // frames a lost track is kept
	MinBlobArea         float64
}

type StreamParameters struct {
	Host    string
	Port    int
	Quality int
	FPS     int
}

type LogParameters struct {
	Level        string
	File         string
	CrossingsLog string
}

type IService interface {
	GetModeMaxShutdownTime() time.Duration
	GetSourceType() string
	GetInputSource() string
	GetCameraIndex() int
	GetDetectorParameters() DetectorParameters
	GetDetectorRetries() int
	GetDefaultLine() model.Line
	GetOnLinePolicy() string
	GetStreamParameters() StreamParameters
	GetExportFolder() string
	GetHistoryFile() string
	GetHistoryInterval() time.Duration
	GetStorageRoot() string
	GetRecordVideo() bool
	GetDataBackend() string
	GetDataPath() string
	GetLogParameters() LogParameters
	GetStopTimeout() time.Duration
	GetDisplayRefresh() time.Duration
	GetWebhookURL() string
}
