package inference

import (
	"sort"

	"github.com/khaledhikmat/vs-counter/model"
)

const (
	trackMatchIoU = 0.3
	trackMinHits  = 2
	defaultMaxAge = 30
)

type track struct {
	id     int // zero until confirmed
	box    model.Box
	class  int
	hits   int
	misses int
}

// Tracker assigns stable IDs to detections by greedy IoU matching against
// the previous frame's tracks of the same class. A track gets an ID after
// trackMinHits consecutive matches and is dropped after maxAge missed frames.
type Tracker struct {
	maxAge int
	nextID int
	tracks []*track
}

func NewTracker(maxAge int) *Tracker {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Tracker{maxAge: maxAge, nextID: 1}
}

type pair struct {
	t, d int
	iou  float64
}

// Update matches dets to live tracks and returns them with TrackID set for
// confirmed tracks. The input slice is not modified.
func (t *Tracker) Update(dets []model.Detection) []model.Detection {
	out := make([]model.Detection, len(dets))
	copy(out, dets)

	var pairs []pair
	for ti, tr := range t.tracks {
		for di, d := range out {
			if d.ClassID != tr.class {
				continue
			}
			if iou := tr.box.IoU(d.Box); iou >= trackMatchIoU {
				pairs = append(pairs, pair{t: ti, d: di, iou: iou})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })

	trackUsed := make([]bool, len(t.tracks))
	detUsed := make([]bool, len(out))
	for _, p := range pairs {
		if trackUsed[p.t] || detUsed[p.d] {
			continue
		}
		trackUsed[p.t], detUsed[p.d] = true, true

		tr := t.tracks[p.t]
		tr.box = out[p.d].Box
		tr.hits++
		tr.misses = 0
		if tr.id == 0 && tr.hits >= trackMinHits {
			tr.id = t.nextID
			t.nextID++
		}
		if tr.id != 0 {
			id := tr.id
			out[p.d].TrackID = &id
		}
	}

	live := t.tracks[:0]
	for i, tr := range t.tracks {
		if !trackUsed[i] {
			tr.misses++
			// Tentative tracks die on their first miss
			if tr.id == 0 || tr.misses > t.maxAge {
				continue
			}
		}
		live = append(live, tr)
	}
	t.tracks = live

	for di, d := range out {
		if detUsed[di] {
			continue
		}
		out[di].TrackID = nil
		t.tracks = append(t.tracks, &track{box: d.Box, class: d.ClassID, hits: 1})
	}
	return out
}

// Live is the number of tracks currently remembered, tentative included.
func (t *Tracker) Live() int {
	return len(t.tracks)
}

func (t *Tracker) Reset() {
	t.tracks = nil
}
