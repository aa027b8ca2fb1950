package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/config"
	"github.com/khaledhikmat/vs-counter/service/storage"
)

// unwritableStorage hands out video paths inside a folder that does not exist.
type unwritableStorage struct {
	storage.IService
	dir string
}

func (s unwritableStorage) VideoPath(time.Time) (string, error) {
	return filepath.Join(s.dir, "missing", "nested", "annotated.mp4"), nil
}

func TestRecorderGivesUpWhenWriterCannotOpen(t *testing.T) {
	errs := make(chan interface{}, 20)
	stats := make(chan interface{}, 1)
	svcs := ServicesFactory{
		CfgSvc:     config.NewFromMap(nil),
		StorageSvc: unwritableStorage{dir: t.TempDir()},
	}
	rec := NewRecorder(context.Background(), svcs, model.Properties{Width: 64, Height: 48, FPS: 10}, errs, stats)

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for i := 0; i < 5; i++ {
		require.True(t, rec.Submit(frame))
	}
	rec.Close()

	assert.Len(t, errs, 1, "a failed open is reported once")
	e := <-errs
	custom, ok := e.(model.CustomError)
	require.True(t, ok)
	assert.Equal(t, "mp4_recorder", custom.Processor)

	s, ok := (<-stats).(model.RecorderStats)
	require.True(t, ok)
	assert.Zero(t, s.Frames)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 4, s.Dropped)
}
