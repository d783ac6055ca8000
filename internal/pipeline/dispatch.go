package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"lighthouse/internal/domain"
	"lighthouse/pkg/logging"
)

// pollInterval is how often an idle worker rechecks for non-empty queues.
const pollInterval = 20 * time.Millisecond

// Dispatcher fair-schedules frame processing round-robin across streams
// with non-empty queues, bounded globally by max_concurrent_analyses and
// serialized per stream so a stream's frames never reorder (spec.md §4.3).
type Dispatcher struct {
	pipeline *Pipeline
	sem      *semaphore.Weighted
	logger   logging.Logger

	busyMu sync.Mutex
	busy   map[string]bool

	cursorMu sync.Mutex
	cursor   int
}

// NewDispatcher builds a Dispatcher bounded by cfg.MaxConcurrentAnalyses.
func NewDispatcher(p *Pipeline) *Dispatcher {
	max := p.cfg.MaxConcurrentAnalyses
	if max < 1 {
		max = 1
	}
	return &Dispatcher{
		pipeline: p,
		sem:      semaphore.NewWeighted(int64(max)),
		logger:   p.logger,
		busy:     make(map[string]bool),
	}
}

// Run blocks, polling for work until ctx is cancelled. workerCount
// parallel pollers share the same round-robin cursor and busy set.
func (d *Dispatcher) Run(ctx context.Context, workerCount int) {
	if workerCount < 1 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.pollLoop(ctx)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick scans the stream list once, round-robin starting from the shared
// cursor, and dispatches at most one frame per idle, non-busy stream.
func (d *Dispatcher) tick(ctx context.Context) {
	ids := d.streamIDs()
	if len(ids) == 0 {
		return
	}

	d.cursorMu.Lock()
	start := d.cursor % len(ids)
	d.cursor++
	d.cursorMu.Unlock()

	for i := 0; i < len(ids); i++ {
		d.tryDispatch(ctx, ids[(start+i)%len(ids)])
	}
}

func (d *Dispatcher) streamIDs() []string {
	streams := d.pipeline.streams.ActiveList()
	ids := make([]string, 0, len(streams))
	for _, s := range streams {
		if s.Status != domain.StreamActive {
			continue
		}
		ids = append(ids, s.ID)
	}
	return ids
}

func (d *Dispatcher) tryDispatch(ctx context.Context, streamID string) bool {
	if !d.claim(streamID) {
		return false
	}

	q, ok := d.pipeline.streams.Queue(streamID)
	if !ok {
		d.release(streamID)
		return false
	}
	frame, ok := q.Pop()
	if !ok {
		d.release(streamID)
		return false
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.release(streamID)
		return false
	}

	go func() {
		defer d.sem.Release(1)
		defer d.release(streamID)
		d.pipeline.process(ctx, frame)
	}()
	return true
}

func (d *Dispatcher) claim(streamID string) bool {
	d.busyMu.Lock()
	defer d.busyMu.Unlock()
	if d.busy[streamID] {
		return false
	}
	d.busy[streamID] = true
	return true
}

func (d *Dispatcher) release(streamID string) {
	d.busyMu.Lock()
	delete(d.busy, streamID)
	d.busyMu.Unlock()
}
