// Package ledger keeps the append-only history of counted crossings together
// with running per-class totals.
//
// Every method takes the same mutex. Writes come from the pipeline's count
// callback; reads and exports come from the API and display goroutines.
package ledger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/lgr"
)

// Sink receives every record after it has been appended in memory.
type Sink interface {
	NewCrossingRecord(rec model.LedgerRecord) error
}

type Ledger struct {
	mu      sync.Mutex
	totals  map[string]int
	history []model.LedgerRecord
	sink    Sink
	now     func() time.Time
}

func New() *Ledger {
	return &Ledger{
		totals: map[string]int{},
		now:    time.Now,
	}
}

// WithSink mirrors appended records to s. A nil sink disables mirroring.
func (l *Ledger) WithSink(s Sink) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = s
	return l
}

// Add credits one crossing to className and returns the appended record.
func (l *Ledger) Add(className string) model.LedgerRecord {
	l.mu.Lock()
	l.totals[className]++
	rec := model.LedgerRecord{
		Timestamp:  l.now(),
		ClassName:  className,
		TotalSoFar: l.totals[className],
	}
	l.history = append(l.history, rec)
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.NewCrossingRecord(rec); err != nil {
			lgr.Logger.Error(
				"ledger sink failed",
				slog.String("class", className),
				slog.Any("error", err),
			)
		}
	}
	return rec
}

// AddEvents credits every event, resolving class names through names.
func (l *Ledger) AddEvents(events []model.CrossingEvent, names model.ClassNames) {
	for _, e := range events {
		l.Add(names.Name(e.ClassID))
	}
}

func (l *Ledger) Totals() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.totals))
	for k, v := range l.totals {
		out[k] = v
	}
	return out
}

func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// History returns the records in insertion order.
func (l *Ledger) History() []model.LedgerRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.LedgerRecord, len(l.history))
	copy(out, l.history)
	return out
}

// Clear wipes totals and history. The sink is not touched.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals = map[string]int{}
	l.history = nil
}

func (l *Ledger) snapshot() (map[string]int, []model.LedgerRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	totals := make(map[string]int, len(l.totals))
	for k, v := range l.totals {
		totals[k] = v
	}
	history := make([]model.LedgerRecord, len(l.history))
	copy(history, l.history)
	return totals, history
}
