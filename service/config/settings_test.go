package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-counter/model"
)

func TestHardCodedDefaults(t *testing.T) {
	cfg := NewHardCoded()

	assert.Equal(t, model.Line{X1: 0, Y1: 0, X2: 640, Y2: 0, Direction: model.DirectionBoth}, cfg.GetDefaultLine())
	assert.Equal(t, StreamParameters{Host: "0.0.0.0", Port: 8765, Quality: 85, FPS: 30}, cfg.GetStreamParameters())
	assert.Equal(t, 2*time.Second, cfg.GetStopTimeout())
	assert.Equal(t, 3, cfg.GetDetectorRetries())
	assert.Equal(t, time.Minute, cfg.GetHistoryInterval())
	assert.Equal(t, "ignore", cfg.GetOnLinePolicy())
	assert.Equal(t, "sqlite", cfg.GetDataBackend())
	assert.Empty(t, cfg.GetInputSource())
	assert.Empty(t, cfg.GetDetectorParameters().Classes)
	assert.InDelta(t, 0.5, cfg.GetDetectorParameters().ConfidenceThreshold, 1e-6)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INPUT_SOURCE", "rtsp://cam/stream")
	t.Setenv("DEFAULT_LINE", "10, 240, 630, 240")
	t.Setenv("LINE_DIRECTION", "negative")
	t.Setenv("MJPEG_PORT", "9000")
	t.Setenv("CLASSES_TO_DETECT", "0,2, 7")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.35")
	t.Setenv("STOP_TIMEOUT", "500ms")
	t.Setenv("MODE_MAX_SHUTDOWN_TIME", "8")
	t.Setenv("RECORD_VIDEO", "true")

	cfg := NewEnv()

	assert.Equal(t, "rtsp://cam/stream", cfg.GetInputSource())
	assert.Equal(t, model.Line{X1: 10, Y1: 240, X2: 630, Y2: 240, Direction: model.DirectionNegative}, cfg.GetDefaultLine())
	assert.Equal(t, 9000, cfg.GetStreamParameters().Port)
	assert.Equal(t, 85, cfg.GetStreamParameters().Quality)
	assert.Equal(t, []int{0, 2, 7}, cfg.GetDetectorParameters().Classes)
	assert.InDelta(t, 0.35, cfg.GetDetectorParameters().ConfidenceThreshold, 1e-6)
	assert.Equal(t, 500*time.Millisecond, cfg.GetStopTimeout())
	assert.Equal(t, 8*time.Second, cfg.GetModeMaxShutdownTime())
	assert.True(t, cfg.GetRecordVideo())
}

func TestInvalidEnvKeepsDefaults(t *testing.T) {
	env := map[string]string{
		"MJPEG_PORT":     "eighty",
		"DEFAULT_LINE":   "1,2,3",
		"LINE_DIRECTION": "sideways",
		"STOP_TIMEOUT":   "soon",
	}
	cfg := fromLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, 8765, cfg.GetStreamParameters().Port)
	assert.Equal(t, model.Line{X2: 640, Direction: model.DirectionBoth}, cfg.GetDefaultLine())
	assert.Equal(t, 2*time.Second, cfg.GetStopTimeout())
}

func TestDetectorParametersCopiesClasses(t *testing.T) {
	cfg := fromLookup(func(k string) (string, bool) {
		if k == "CLASSES_TO_DETECT" {
			return "1,2", true
		}
		return "", false
	})

	p := cfg.GetDetectorParameters()
	p.Classes[0] = 99
	assert.Equal(t, []int{1, 2}, cfg.GetDetectorParameters().Classes)
}

func TestParseLine(t *testing.T) {
	l, err := ParseLine("0,100,640,100")
	require.NoError(t, err)
	assert.Equal(t, 100.0, l.Y1)
	assert.Equal(t, model.DirectionBoth, l.Direction)

	_, err = ParseLine("0,a,640,100")
	assert.Error(t, err)
}
