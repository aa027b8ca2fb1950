// Package counter implements the line-crossing state machine. It has no I/O
// and no locking; callers that share a Counter across goroutines guard it.
package counter

import (
	"github.com/khaledhikmat/vs-counter/model"
)

// OnLinePolicy decides what happens when a centroid lies exactly on the line.
type OnLinePolicy string

const (
	// OnLineIgnore skips the detection without touching its track state.
	OnLineIgnore OnLinePolicy = "ignore"
	// OnLineNudge keeps the track on its previously recorded side.
	OnLineNudge OnLinePolicy = "nudge"
)

type trackSide struct {
	side     int
	credited bool
}

type Counter struct {
	line   model.Line
	policy OnLinePolicy
	tracks map[int]*trackSide
	counts model.Counts
}

func New(line model.Line) *Counter {
	return NewWithPolicy(line, OnLineIgnore)
}

func NewWithPolicy(line model.Line, policy OnLinePolicy) *Counter {
	if line.Direction == "" {
		line.Direction = model.DirectionBoth
	}
	if policy == "" {
		policy = OnLineIgnore
	}
	return &Counter{
		line:   line,
		policy: policy,
		tracks: map[int]*trackSide{},
		counts: model.Counts{},
	}
}

// Update feeds one frame of detections and returns the crossings accepted by
// the line direction filter. Counts are incremented for every first crossing of
// a track, whether or not the filter accepts the event.
func (c *Counter) Update(detections []model.Detection) []model.CrossingEvent {
	var events []model.CrossingEvent
	for _, d := range detections {
		if d.TrackID == nil {
			continue
		}
		id := *d.TrackID

		cx, cy := d.Box.Center()
		side := sign(c.line.Side(cx, cy))

		state, seen := c.tracks[id]
		if side == 0 {
			if c.policy != OnLineNudge || !seen {
				continue
			}
			side = state.side
		}

		if !seen {
			c.tracks[id] = &trackSide{side: side}
			continue
		}

		last := state.side
		state.side = side
		if state.credited || last == side {
			continue
		}

		state.credited = true
		c.counts[d.ClassID]++

		direction := model.DirectionNegative
		if side > last {
			direction = model.DirectionPositive
		}
		if c.line.Direction == model.DirectionBoth || c.line.Direction == direction {
			events = append(events, model.CrossingEvent{
				TrackID:   id,
				ClassID:   d.ClassID,
				Direction: direction,
			})
		}
	}
	return events
}

// SetLine replaces the line and forgets every track. Counts are kept.
func (c *Counter) SetLine(line model.Line) {
	if line.Direction == "" {
		line.Direction = model.DirectionBoth
	}
	c.line = line
	c.tracks = map[int]*trackSide{}
}

// Reset forgets every track and zeroes the counts.
func (c *Counter) Reset() {
	c.tracks = map[int]*trackSide{}
	c.counts = model.Counts{}
}

func (c *Counter) Line() model.Line {
	return c.line
}

func (c *Counter) Policy() OnLinePolicy {
	return c.policy
}

func (c *Counter) Counts() model.Counts {
	return c.counts.Copy()
}

func (c *Counter) Total() int {
	return c.counts.Total()
}

// Tracked is the number of track IDs with a remembered side.
func (c *Counter) Tracked() int {
	return len(c.tracks)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
