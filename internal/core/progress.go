package core

import (
	"sync"
	"time"
)

// Progress reports how far a materialization run has got.
type Progress struct {
	RunID      string  `json:"runId"`
	Stage      Stage   `json:"stage"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Percent    float64 `json:"percent"`
	ETASeconds float64 `json:"etaSeconds"`
	Done       bool    `json:"done"`
}

// ProgressBroker fans progress events out to subscribers. Slow subscribers
// miss events rather than block the run.
type ProgressBroker struct {
	mu   sync.Mutex
	subs map[chan Progress]struct{}
	last *Progress
}

func NewProgressBroker() *ProgressBroker {
	return &ProgressBroker{subs: make(map[chan Progress]struct{})}
}

// Subscribe returns a channel of progress events and a function that
// unsubscribes and closes it. The latest event, if any, is delivered first.
func (b *ProgressBroker) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 16)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	if b.last != nil {
		ch <- *b.last
	}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends p to every subscriber.
func (b *ProgressBroker) Publish(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = &p
	for ch := range b.subs {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
}

// Last returns the most recent event.
func (b *ProgressBroker) Last() (Progress, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return Progress{}, false
	}
	return *b.last, true
}

// progressTracker throttles publishing to one event per interval, plus the
// final event.
type progressTracker struct {
	broker   *ProgressBroker
	interval time.Duration
	now      func() time.Time

	runID     string
	stage     Stage
	total     int
	started   time.Time
	published time.Time
	sent      int
}

func newProgressTracker(b *ProgressBroker, interval time.Duration, now func() time.Time, runID string, stage Stage, total int) *progressTracker {
	start := now()
	return &progressTracker{
		broker:   b,
		interval: interval,
		now:      now,
		runID:    runID,
		stage:    stage,
		total:    total,
		started:  start,
	}
}

// tick records that processed items are done and publishes when due.
func (t *progressTracker) tick(processed int) {
	if t == nil || t.broker == nil {
		return
	}
	now := t.now()
	done := processed >= t.total
	since := t.published
	if t.sent == 0 {
		since = t.started
	}
	if !done && now.Sub(since) < t.interval {
		return
	}

	p := Progress{
		RunID:     t.runID,
		Stage:     t.stage,
		Processed: processed,
		Total:     t.total,
		Done:      done,
	}
	if t.total > 0 {
		p.Percent = float64(processed) * 100 / float64(t.total)
	} else {
		p.Percent = 100
	}
	if processed > 0 && !done {
		perItem := now.Sub(t.started) / time.Duration(processed)
		p.ETASeconds = (perItem * time.Duration(t.total-processed)).Seconds()
	}

	t.broker.Publish(p)
	t.published = now
	t.sent++
}
