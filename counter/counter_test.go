package counter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-counter/model"
)

const person = 0

func horizontal(direction model.Direction) model.Line {
	return model.Line{X1: 0, Y1: 0, X2: 100, Y2: 0, Direction: direction}
}

// at builds a 10x10 box centered on (cx, cy).
func at(trackID, classID int, cx, cy float64) model.Detection {
	id := trackID
	return model.Detection{
		Box:        model.Box{X1: cx - 5, Y1: cy - 5, X2: cx + 5, Y2: cy + 5},
		TrackID:    &id,
		ClassID:    classID,
		Confidence: 0.9,
	}
}

func TestSingleCrossingCounts(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))

	assert.Empty(t, c.Update([]model.Detection{at(5, person, 50, -10)}))
	events := c.Update([]model.Detection{at(5, person, 50, 10)})

	want := []model.CrossingEvent{{TrackID: 5, ClassID: person, Direction: model.DirectionPositive}}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, model.Counts{person: 1}, c.Counts())
	assert.Equal(t, 1, c.Total())
}

func TestRecrossingIsCreditedOnce(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))

	c.Update([]model.Detection{at(5, person, 50, -10)})
	require.Len(t, c.Update([]model.Detection{at(5, person, 50, 10)}), 1)

	for _, y := range []float64{-10, 10, -10, 10} {
		assert.Empty(t, c.Update([]model.Detection{at(5, person, 50, y)}))
	}
	assert.Equal(t, model.Counts{person: 1}, c.Counts())
}

func TestNegativeCrossing(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))

	c.Update([]model.Detection{at(1, 2, 50, 10)})
	events := c.Update([]model.Detection{at(1, 2, 50, -10)})

	require.Len(t, events, 1)
	assert.Equal(t, model.DirectionNegative, events[0].Direction)
	assert.Equal(t, 2, events[0].ClassID)
}

func TestDirectionFilterStillCounts(t *testing.T) {
	filtered := New(horizontal(model.DirectionPositive))
	unfiltered := New(horizontal(model.DirectionBoth))

	var filteredEvents, unfilteredEvents int
	for _, y := range []float64{10, -10} {
		frame := []model.Detection{at(9, person, 50, y)}
		filteredEvents += len(filtered.Update(frame))
		unfilteredEvents += len(unfiltered.Update(frame))
	}

	assert.Equal(t, 0, filteredEvents)
	assert.Equal(t, 1, unfilteredEvents)
	assert.Equal(t, unfiltered.Counts(), filtered.Counts())
	assert.Equal(t, model.Counts{person: 1}, filtered.Counts())
}

func TestDirectionFilterAccepts(t *testing.T) {
	c := New(horizontal(model.DirectionNegative))

	c.Update([]model.Detection{at(3, person, 50, 10)})
	events := c.Update([]model.Detection{at(3, person, 50, -10)})

	require.Len(t, events, 1)
	assert.Equal(t, model.DirectionNegative, events[0].Direction)
}

func TestCentroidOnLineIsIgnored(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))

	c.Update([]model.Detection{at(4, person, 50, -10)})
	assert.Empty(t, c.Update([]model.Detection{at(4, person, 50, 0)}))
	assert.Equal(t, 1, c.Tracked())

	// The remembered side is still -1, so moving to +1 is a crossing.
	events := c.Update([]model.Detection{at(4, person, 50, 10)})
	require.Len(t, events, 1)
	assert.Equal(t, model.DirectionPositive, events[0].Direction)
}

func TestCentroidOnLineFirstObservation(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))

	assert.Empty(t, c.Update([]model.Detection{at(4, person, 50, 0)}))
	assert.Equal(t, 0, c.Tracked())
}

func TestNudgePolicyKeepsPreviousSide(t *testing.T) {
	c := NewWithPolicy(horizontal(model.DirectionBoth), OnLineNudge)

	c.Update([]model.Detection{at(4, person, 50, -10)})
	assert.Empty(t, c.Update([]model.Detection{at(4, person, 50, 0)}))
	require.Len(t, c.Update([]model.Detection{at(4, person, 50, 10)}), 1)

	// Unseen track on the line is still skipped.
	assert.Empty(t, c.Update([]model.Detection{at(8, person, 20, 0)}))
	assert.Equal(t, 1, c.Tracked())
}

func TestUntrackedDetectionsAreSkipped(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))

	d := at(1, person, 50, -10)
	d.TrackID = nil
	c.Update([]model.Detection{d})
	d.Box = model.Box{X1: 45, Y1: 5, X2: 55, Y2: 15}
	assert.Empty(t, c.Update([]model.Detection{d}))
	assert.Equal(t, 0, c.Tracked())
	assert.Equal(t, 0, c.Total())
}

func TestIndependentTracksInOneFrame(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))

	c.Update([]model.Detection{at(1, person, 10, -10), at(2, 2, 60, 10)})
	events := c.Update([]model.Detection{at(1, person, 10, 10), at(2, 2, 60, -10)})

	require.Len(t, events, 2)
	assert.Equal(t, model.Counts{person: 1, 2: 1}, c.Counts())
	assert.Equal(t, 2, c.Total())
}

func TestSetLineKeepsCountsAndForgetsTracks(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))

	c.Update([]model.Detection{at(5, person, 50, -10)})
	c.Update([]model.Detection{at(5, person, 50, 10)})
	require.Equal(t, 1, c.Total())

	vertical := model.Line{X1: 100, Y1: 0, X2: 100, Y2: 100}
	c.SetLine(vertical)

	assert.Equal(t, 1, c.Total())
	assert.Equal(t, 0, c.Tracked())
	assert.Equal(t, model.DirectionBoth, c.Line().Direction)

	// Track 5 is no longer credited and may count again against the new line.
	c.Update([]model.Detection{at(5, person, 90, 50)})
	require.Len(t, c.Update([]model.Detection{at(5, person, 110, 50)}), 1)
	assert.Equal(t, 2, c.Total())
}

func TestResetClearsEverything(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))

	c.Update([]model.Detection{at(5, person, 50, -10)})
	c.Update([]model.Detection{at(5, person, 50, 10)})
	c.Reset()

	assert.Equal(t, 0, c.Total())
	assert.Empty(t, c.Counts())
	assert.Equal(t, 0, c.Tracked())
}

func TestCountsReturnsCopy(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))
	c.Update([]model.Detection{at(5, person, 50, -10)})
	c.Update([]model.Detection{at(5, person, 50, 10)})

	counts := c.Counts()
	counts[person] = 100

	assert.Equal(t, 1, c.Counts()[person])
}

func TestAtMostOncePerTrack(t *testing.T) {
	c := New(horizontal(model.DirectionBoth))

	// Three tracks oscillating across the line for many frames.
	for frame := 0; frame < 50; frame++ {
		y := -10.0
		if frame%2 == 1 {
			y = 10
		}
		c.Update([]model.Detection{at(1, person, 10, y), at(2, person, 20, -y), at(3, 2, 30, y)})
	}

	assert.Equal(t, model.Counts{person: 2, 2: 1}, c.Counts())
}
