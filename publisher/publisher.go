// Package publisher holds the latest annotated frame and counts snapshot.
// The pipeline writes at its own cadence; the display and stream clients
// read at theirs and may skip frames.
package publisher

import (
	"sync"

	"github.com/khaledhikmat/vs-counter/model"
	"gocv.io/x/gocv"
)

type Publisher struct {
	mu     sync.RWMutex
	frame  gocv.Mat
	counts model.Counts
	seq    uint64
	has    bool
}

func New() *Publisher {
	return &Publisher{
		frame:  gocv.NewMat(),
		counts: model.Counts{},
	}
}

// Publish replaces the held snapshot with copies of frame and counts. The
// caller keeps ownership of frame.
func (p *Publisher) Publish(frame gocv.Mat, counts model.Counts) {
	clone := frame.Clone()
	cc := counts.Copy()

	p.mu.Lock()
	prev := p.frame
	p.frame = clone
	p.counts = cc
	p.seq++
	p.has = true
	p.mu.Unlock()

	prev.Close()
}

// Read returns independent copies of the latest snapshot. Before the first
// Publish it returns an empty Mat, empty counts and false. The caller closes
// the returned Mat.
func (p *Publisher) Read() (gocv.Mat, model.Counts, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.has {
		return gocv.NewMat(), model.Counts{}, false
	}
	return p.frame.Clone(), p.counts.Copy(), true
}

// Counts returns a copy of the latest counts without touching the frame.
func (p *Publisher) Counts() model.Counts {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counts.Copy()
}

// Seq increases by one on every Publish.
func (p *Publisher) Seq() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.seq
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.has = false
	p.counts = model.Counts{}
	return p.frame.Close()
}
