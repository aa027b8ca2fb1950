package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-counter/service/config"
)

func TestSyntheticProducesFrames(t *testing.T) {
	src, err := NewSynthetic(0).Open("")
	require.NoError(t, err)
	defer src.Close()

	img := gocv.NewMat()
	defer img.Close()

	require.True(t, src.Read(&img))
	assert.Equal(t, 480, img.Rows())
	assert.Equal(t, 640, img.Cols())

	p := src.Properties()
	assert.Equal(t, 640, p.Width)
	assert.Equal(t, 480, p.Height)
}

func TestSyntheticBlocksMove(t *testing.T) {
	src, err := NewSynthetic(0).Open("")
	require.NoError(t, err)
	s := src.(*synthetic)

	first := s.blockY(s.lanes[0])
	img := gocv.NewMat()
	defer img.Close()
	require.True(t, src.Read(&img))
	assert.Equal(t, first+s.lanes[0].speed, s.blockY(s.lanes[0]))
}

func TestSyntheticReadAfterClose(t *testing.T) {
	src, err := NewSynthetic(0).Open("")
	require.NoError(t, err)
	require.NoError(t, src.Close())

	img := gocv.NewMat()
	defer img.Close()
	assert.False(t, src.Read(&img))
}

func TestCaptureMissingFile(t *testing.T) {
	_, err := NewCapture(config.NewHardCoded()).Open("/nonexistent/video.mp4")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}
