package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/lgr"
)

type settings struct {
	modeMaxShutdownTime time.Duration
	sourceType          string
	inputSource         string
	cameraIndex         int
	detector            DetectorParameters
	detectorRetries     int
	defaultLine         model.Line
	onLinePolicy        string
	stream              StreamParameters
	exportFolder        string
	historyFile         string
	historyInterval     time.Duration
	storageRoot         string
	recordVideo         bool
	dataBackend         string
	dataPath            string
	log                 LogParameters
	stopTimeout         time.Duration
	displayRefresh      time.Duration
	webhookURL          string
}

// NewHardCoded returns the built-in defaults.
func NewHardCoded() IService {
	return defaults()
}

// NewEnv returns the defaults overridden by environment variables. Invalid
// values are logged and ignored.
func NewEnv() IService {
	return fromLookup(os.LookupEnv)
}

// NewFromMap applies overrides from env instead of the process environment.
func NewFromMap(env map[string]string) IService {
	return fromLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
}

func defaults() *settings {
	return &settings{
		modeMaxShutdownTime: 5 * time.Second,
		sourceType:          "capture",
		inputSource:         "",
		cameraIndex:         0,
		detector: DetectorParameters{
			Name:                "yolo5",
			ModelPath:           "./yolo5/yolov5s.onnx",
			LabelsPath:          "./yolo5/coco.names",
			ConfidenceThreshold: 0.5,
			IoUThreshold:        0.5,
			TrackerMaxAge:       30,
			MinBlobArea:         400,
		},
		detectorRetries: 3,
		defaultLine:     model.Line{X1: 0, Y1: 0, X2: 640, Y2: 0, Direction: model.DirectionBoth},
		onLinePolicy:    "ignore",
		stream: StreamParameters{
			Host:    "0.0.0.0",
			Port:    8765,
			Quality: 85,
			FPS:     30,
		},
		exportFolder:    "./exports",
		historyFile:     "count_history.csv",
		historyInterval: time.Minute,
		storageRoot:     "./storage",
		recordVideo:     false,
		dataBackend:     "sqlite",
		dataPath:        "./storage/counts.db",
		log: LogParameters{
			Level:        "info",
			File:         "./logs/vs-counter.log",
			CrossingsLog: "./logs/crossings.log",
		},
		stopTimeout:    2 * time.Second,
		displayRefresh: 30 * time.Millisecond,
	}
}

func fromLookup(lookup func(string) (string, bool)) *settings {
	s := defaults()
	e := envReader{lookup: lookup}

	e.duration("MODE_MAX_SHUTDOWN_TIME", &s.modeMaxShutdownTime)
	e.str("SOURCE_TYPE", &s.sourceType)
	e.str("INPUT_SOURCE", &s.inputSource)
	e.integer("CAMERA_INDEX", &s.cameraIndex)

	e.str("DETECTOR", &s.detector.Name)
	e.str("YOLO_MODEL_PATH", &s.detector.ModelPath)
	e.str("YOLO_LABELS_PATH", &s.detector.LabelsPath)
	e.float32("CONFIDENCE_THRESHOLD", &s.detector.ConfidenceThreshold)
	e.float32("IOU_THRESHOLD", &s.detector.IoUThreshold)
	e.ints("CLASSES_TO_DETECT", &s.detector.Classes)
	e.integer("TRACKER_MAX_AGE", &s.detector.TrackerMaxAge)
	e.float64("MIN_BLOB_AREA", &s.detector.MinBlobArea)
	e.integer("DETECTOR_RETRIES", &s.detectorRetries)

	e.line("DEFAULT_LINE", &s.defaultLine)
	if v, ok := lookup("LINE_DIRECTION"); ok {
		if d, err := model.ParseDirection(v); err == nil {
			s.defaultLine.Direction = d
		} else {
			e.invalid("LINE_DIRECTION", v, err)
		}
	}
	e.str("ON_LINE_POLICY", &s.onLinePolicy)

	e.str("MJPEG_HOST", &s.stream.Host)
	e.integer("MJPEG_PORT", &s.stream.Port)
	e.integer("MJPEG_QUALITY", &s.stream.Quality)
	e.integer("MJPEG_FPS", &s.stream.FPS)

	e.str("EXPORT_DIR", &s.exportFolder)
	e.str("HISTORY_CSV", &s.historyFile)
	e.duration("HISTORY_INTERVAL", &s.historyInterval)
	e.str("STORAGE_ROOT", &s.storageRoot)
	e.boolean("RECORD_VIDEO", &s.recordVideo)
	e.str("DATA_BACKEND", &s.dataBackend)
	if _, ok := lookup("DATA_PATH"); !ok && s.dataBackend == "files" {
		s.dataPath = "./storage/data"
	}
	e.str("DATA_PATH", &s.dataPath)

	e.str("LOG_LEVEL", &s.log.Level)
	e.str("LOG_FILE", &s.log.File)
	e.str("CROSSINGS_LOG_FILE", &s.log.CrossingsLog)

	e.duration("STOP_TIMEOUT", &s.stopTimeout)
	e.duration("DISPLAY_REFRESH", &s.displayRefresh)
	e.str("WEBHOOK_URL", &s.webhookURL)

	return s
}

type envReader struct {
	lookup func(string) (string, bool)
}

func (e envReader) invalid(key, value string, err error) {
	lgr.Logger.Warn(
		"ignoring invalid config value",
		slog.String("key", key),
		slog.String("value", value),
		slog.Any("error", err),
	)
}

func (e envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e envReader) integer(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	*dst = n
}

func (e envReader) float32(key string, dst *float32) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	*dst = float32(f)
}

func (e envReader) float64(key string, dst *float64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	*dst = f
}

func (e envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	*dst = b
}

// duration accepts Go durations ("30ms", "2s") or plain seconds ("5").
func (e envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	*dst = d
}

func (e envReader) ints(key string, dst *[]int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	out, err := parseInts(v)
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	*dst = out
}

func (e envReader) line(key string, dst *model.Line) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	l, err := ParseLine(v)
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	l.Direction = dst.Direction
	*dst = l
}

func parseInts(v string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseLine parses "x1,y1,x2,y2".
func ParseLine(v string) (model.Line, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return model.Line{}, fmt.Errorf("line needs 4 comma separated values, got %d", len(parts))
	}
	var coords [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.Line{}, err
		}
		coords[i] = f
	}
	return model.Line{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3], Direction: model.DirectionBoth}, nil
}

func (svc *settings) GetModeMaxShutdownTime() time.Duration {
	return svc.modeMaxShutdownTime
}

// GetSourceType is "capture" for gocv VideoCapture or "synthetic".
func (svc *settings) GetSourceType() string {
	return svc.sourceType
}

// GetInputSource is a file path or URL; empty means the camera index.
func (svc *settings) GetInputSource() string {
	return svc.inputSource
}

func (svc *settings) GetCameraIndex() int {
	return svc.cameraIndex
}

func (svc *settings) GetDetectorParameters() DetectorParameters {
	p := svc.detector
	p.Classes = append([]int(nil), svc.detector.Classes...)
	return p
}

func (svc *settings) GetDetectorRetries() int {
	return svc.detectorRetries
}

func (svc *settings) GetDefaultLine() model.Line {
	return svc.defaultLine
}

func (svc *settings) GetOnLinePolicy() string {
	return svc.onLinePolicy
}

func (svc *settings) GetStreamParameters() StreamParameters {
	return svc.stream
}

func (svc *settings) GetExportFolder() string {
	return svc.exportFolder
}

func (svc *settings) GetHistoryFile() string {
	return svc.historyFile
}

func (svc *settings) GetHistoryInterval() time.Duration {
	return svc.historyInterval
}

func (svc *settings) GetStorageRoot() string {
	return svc.storageRoot
}

func (svc *settings) GetRecordVideo() bool {
	return svc.recordVideo
}

// GetDataBackend is "sqlite" or "files".
func (svc *settings) GetDataBackend() string {
	return svc.dataBackend
}

// GetDataPath is the sqlite file, or the folder of the files backend.
func (svc *settings) GetDataPath() string {
	return svc.dataPath
}

func (svc *settings) GetLogParameters() LogParameters {
	return svc.log
}

func (svc *settings) GetStopTimeout() time.Duration {
	return svc.stopTimeout
}

func (svc *settings) GetDisplayRefresh() time.Duration {
	return svc.displayRefresh
}

func (svc *settings) GetWebhookURL() string {
	return svc.webhookURL
}
