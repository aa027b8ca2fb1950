package data

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/config"
)

func backends(t *testing.T) map[string]IService {
	dir := t.TempDir()

	sq, err := New(config.NewFromMap(map[string]string{
		"DATA_BACKEND": SqliteBackend,
		"DATA_PATH":    filepath.Join(dir, "db", "counts.db"),
	}))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	fs, err := New(config.NewFromMap(map[string]string{
		"DATA_BACKEND": FilesBackend,
		"DATA_PATH":    filepath.Join(dir, "files"),
	}))
	require.NoError(t, err)

	return map[string]IService{"sqlite": sq, "files": fs}
}

func TestCrossingsRoundTrip(t *testing.T) {
	base := time.Date(2026, 2, 7, 10, 0, 0, 123000000, time.UTC)
	want := []model.LedgerRecord{
		{Timestamp: base, ClassName: "person", TotalSoFar: 1},
		{Timestamp: base.Add(time.Second), ClassName: "car", TotalSoFar: 1},
		{Timestamp: base.Add(2 * time.Second), ClassName: "person", TotalSoFar: 2},
	}

	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, rec := range want {
				require.NoError(t, svc.NewCrossingRecord(rec))
			}

			got, err := svc.RetrieveCrossings(0)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("crossings mismatch (-want +got):\n%s", diff)
			}

			last, err := svc.RetrieveCrossings(2)
			require.NoError(t, err)
			if diff := cmp.Diff(want[1:], last); diff != "" {
				t.Errorf("limited crossings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEmptyCrossings(t *testing.T) {
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := svc.RetrieveCrossings(10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestErrorsAndStatsAreAccepted(t *testing.T) {
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, svc.NewError(model.GenError("pipeline", errors.New("boom"), map[string]interface{}{"frame": 7}, "detector failed")))
			assert.NoError(t, svc.NewError(errors.New("plain")))
			assert.NoError(t, svc.NewPipelineStats(model.PipelineStats{Name: "pipeline", Frames: 10}))
			assert.NoError(t, svc.NewStreamStats(model.StreamStats{Name: "mjpeg", Frames: 3}))
			assert.NoError(t, svc.NewRecorderStats(model.RecorderStats{Name: "mp4Recorder"}))
		})
	}
}

func TestSqlitePersistsErrors(t *testing.T) {
	svc, err := NewSqlite(config.NewFromMap(map[string]string{"DATA_PATH": filepath.Join(t.TempDir(), "counts.db")}))
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.NewError(model.GenError("stream", errors.New("broken pipe"), nil, "client write")))

	var processor, inner string
	row := svc.(*sqliteService).db.QueryRow(`SELECT processor, inner_error FROM errors`)
	require.NoError(t, row.Scan(&processor, &inner))
	assert.Equal(t, "stream", processor)
	assert.Equal(t, "broken pipe", inner)
}

func TestSqliteReopenKeepsData(t *testing.T) {
	cfg := config.NewFromMap(map[string]string{"DATA_PATH": filepath.Join(t.TempDir(), "counts.db")})

	svc, err := NewSqlite(cfg)
	require.NoError(t, err)
	require.NoError(t, svc.NewCrossingRecord(model.LedgerRecord{Timestamp: time.Now(), ClassName: "bus", TotalSoFar: 1}))
	require.NoError(t, svc.Close())

	svc, err = NewSqlite(cfg)
	require.NoError(t, err)
	defer svc.Close()

	got, err := svc.RetrieveCrossings(0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bus", got[0].ClassName)
}

func TestFilesWritesJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "files")
	svc, err := NewFilesDB(config.NewFromMap(map[string]string{"DATA_BACKEND": FilesBackend, "DATA_PATH": dir}))
	require.NoError(t, err)

	require.NoError(t, svc.NewPipelineStats(model.PipelineStats{Name: "pipeline"}))
	_, err = os.Stat(filepath.Join(dir, "pipeline-stats.json"))
	assert.NoError(t, err)
}

func TestUnknownBackend(t *testing.T) {
	_, err := New(config.NewFromMap(map[string]string{"DATA_BACKEND": "mongo"}))
	assert.Error(t, err)
}
