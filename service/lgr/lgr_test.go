package lgr

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/mdobak/go-xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleHandlerFormatsAttrs(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, slog.LevelDebug))

	logger.With(slog.String("run", "r1")).WithGroup("frame").Info("published", slog.Int("seq", 7))

	line := buf.String()
	assert.Contains(t, line, "INFO: published")
	idx := strings.Index(line, "{")
	require.GreaterOrEqual(t, idx, 0)

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(line[idx:]), &fields))
	assert.Equal(t, "r1", fields["run"])
	assert.Equal(t, map[string]any{"seq": float64(7)}, fields["frame"])
}

func TestConsoleHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, slog.LevelWarn))

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestReplaceAttrExpandsErrors(t *testing.T) {
	a := replaceAttr(nil, slog.Any("error", xerrors.New("boom")))
	require.Equal(t, slog.KindGroup, a.Value.Kind())

	group := map[string]slog.Value{}
	for _, ga := range a.Value.Group() {
		group[ga.Key] = ga.Value
	}
	assert.Equal(t, "boom", group["msg"].String())
	assert.Contains(t, group, "trace")

	plain := replaceAttr(nil, slog.Any("error", errors.New("plain")))
	require.Equal(t, slog.KindGroup, plain.Value.Kind())
	assert.Len(t, plain.Value.Group(), 1)
}

func TestSetupWritesJSONFile(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev }()

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger := Setup(Options{Level: "debug", File: path})
	logger.Debug("hello", slog.String("k", "v"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
