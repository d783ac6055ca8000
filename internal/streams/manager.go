// Package streams implements stream lifecycle, frame counters, socket
// binding, and the scenario index (SPEC_FULL.md component: Stream Manager).
package streams

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"lighthouse/internal/apierr"
	"lighthouse/internal/domain"
	"lighthouse/internal/store"
	"lighthouse/pkg/logging"
	"lighthouse/pkg/monitoring"
)

// Socket is the minimal surface the Manager needs from a live connection;
// satisfied by a *gateway websocket wrapper so this package stays
// transport-agnostic.
type Socket interface {
	Close() error
}

type entry struct {
	mu     sync.Mutex
	stream *domain.Stream
	socket Socket
	queue  *frameQueue
}

// Manager owns the in-memory stream registry. Frame and alert counters
// reach the Store only when a stream is ended, paused or resumed; there
// is no periodic flush.
type Manager struct {
	mu      sync.RWMutex
	streams map[string]*entry
	store   *store.Store
	logger  logging.Logger

	pingTimeout    time.Duration
	frameQueueSize int

	activeGauge   prometheus.Gauge
	droppedTotal  prometheus.Counter
	alertsTotal   prometheus.Counter
}

// Config configures liveness and queue sizing.
type Config struct {
	PingTimeout    time.Duration
	FrameQueueSize int
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		PingTimeout:    60 * time.Second,
		FrameQueueSize: 8,
	}
}

// New builds a Manager backed by the given Store, registering its
// Prometheus gauges through the shared MetricsCollector (SPEC_FULL.md §4.2).
func New(st *store.Store, logger logging.Logger, mc *monitoring.MetricsCollector, cfg Config) *Manager {
	return &Manager{
		streams:      make(map[string]*entry),
		store:        st,
		logger:       logger,
		pingTimeout:  cfg.PingTimeout,
		frameQueueSize: cfg.FrameQueueSize,
		activeGauge:  mc.NewGauge("active_streams", "Number of active monitoring streams", nil).WithLabelValues(),
		droppedTotal: mc.NewCounter("frames_dropped_total", "Frames dropped due to queue overflow", nil).WithLabelValues(),
		alertsTotal:  mc.NewCounter("alerts_total", "Total alerts created", nil).WithLabelValues(),
	}
}

// Create assigns an id, persists the Stream active, and indexes it.
func (m *Manager) Create(ctx context.Context, name string, scenario domain.Scenario, userID string, prefs *domain.Preferences) (*domain.Stream, error) {
	now := time.Now()
	st := &domain.Stream{
		ID:          uuid.NewString(),
		Name:        name,
		UserID:      userID,
		Scenario:    scenario,
		Status:      domain.StreamActive,
		StartedAt:   now,
		LastPing:    now,
		Preferences: prefs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.InsertStream(ctx, st); err != nil {
		return nil, fmt.Errorf("streams: create: %w", err)
	}

	m.mu.Lock()
	m.streams[st.ID] = &entry{stream: st, queue: newFrameQueue(m.frameQueueSize)}
	m.mu.Unlock()
	m.activeGauge.Inc()

	return st, nil
}

// AttachSocket binds one socket to a stream; rejects if already bound or
// the stream is missing.
func (m *Manager) AttachSocket(streamID string, socket Socket) (bool, error) {
	e, ok := m.entry(streamID)
	if !ok {
		return false, apierr.New(apierr.NotFound, "stream not found")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.socket != nil {
		return false, nil
	}
	e.socket = socket
	return true, nil
}

// UpdatePing refreshes the stream's liveness timestamp.
func (m *Manager) UpdatePing(streamID string) {
	e, ok := m.entry(streamID)
	if !ok {
		return
	}
	e.mu.Lock()
	e.stream.LastPing = time.Now()
	e.mu.Unlock()
}

// IncFrames bumps the frame counter; drop indicates the frame was dropped
// for overflow rather than processed.
func (m *Manager) IncFrames(streamID string, drop bool) {
	e, ok := m.entry(streamID)
	if !ok {
		return
	}
	e.mu.Lock()
	e.stream.FrameCount++
	e.mu.Unlock()
	if drop {
		m.droppedTotal.Inc()
	}
}

// IncAlerts bumps a stream's alert counter.
func (m *Manager) IncAlerts(streamID string) {
	e, ok := m.entry(streamID)
	if !ok {
		return
	}
	e.mu.Lock()
	e.stream.AlertCount++
	e.mu.Unlock()
	m.alertsTotal.Inc()
}

// End closes the socket, marks the stream disconnected, and flushes it.
func (m *Manager) End(ctx context.Context, streamID string) error {
	e, ok := m.entry(streamID)
	if !ok {
		return apierr.New(apierr.NotFound, "stream not found")
	}

	e.mu.Lock()
	if e.socket != nil {
		_ = e.socket.Close()
		e.socket = nil
	}
	now := time.Now()
	e.stream.Status = domain.StreamDisconnected
	e.stream.EndedAt = &now
	e.stream.UpdatedAt = now
	snapshot := *e.stream
	e.mu.Unlock()

	m.activeGauge.Dec()
	return m.store.UpdateStream(ctx, &snapshot)
}

// Pause marks a stream paused. The gateway still enqueues its frames, but
// the dispatcher only takes frames from active streams, so they wait in
// the stream's queue (oldest dropped on overflow) until Resume.
func (m *Manager) Pause(ctx context.Context, streamID string) error {
	return m.setStatus(ctx, streamID, domain.StreamPaused)
}

// Resume returns a paused stream to active.
func (m *Manager) Resume(ctx context.Context, streamID string) error {
	return m.setStatus(ctx, streamID, domain.StreamActive)
}

func (m *Manager) setStatus(ctx context.Context, streamID string, status domain.StreamStatus) error {
	e, ok := m.entry(streamID)
	if !ok {
		return apierr.New(apierr.NotFound, "stream not found")
	}

	e.mu.Lock()
	e.stream.Status = status
	e.stream.UpdatedAt = time.Now()
	snapshot := *e.stream
	e.mu.Unlock()

	return m.store.UpdateStream(ctx, &snapshot)
}

// GetByScenario lists in-memory streams for one scenario.
func (m *Manager) GetByScenario(scenario domain.Scenario) []*domain.Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Stream
	for _, e := range m.streams {
		e.mu.Lock()
		if e.stream.Scenario == scenario {
			snap := *e.stream
			out = append(out, &snap)
		}
		e.mu.Unlock()
	}
	return out
}

// ActiveList returns a snapshot of every tracked stream.
func (m *Manager) ActiveList() []*domain.Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Stream, 0, len(m.streams))
	for _, e := range m.streams {
		e.mu.Lock()
		snap := *e.stream
		e.mu.Unlock()
		out = append(out, &snap)
	}
	return out
}

// Summary reports coarse counts for the status endpoint (spec.md §6).
type Summary struct {
	ActiveStreams int
	TotalFrames   int64
	TotalAlerts   int64
}

// Summary aggregates the in-memory registry.
func (m *Manager) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Summary
	for _, e := range m.streams {
		e.mu.Lock()
		if e.stream.Status != domain.StreamDisconnected {
			s.ActiveStreams++
		}
		s.TotalFrames += e.stream.FrameCount
		s.TotalAlerts += e.stream.AlertCount
		e.mu.Unlock()
	}
	return s
}

// Get returns a snapshot of one stream.
func (m *Manager) Get(streamID string) (*domain.Stream, bool) {
	e, ok := m.entry(streamID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := *e.stream
	return &snap, true
}

// Queue returns the stream's frame queue, used by the pipeline dispatcher.
func (m *Manager) Queue(streamID string) (*frameQueue, bool) {
	e, ok := m.entry(streamID)
	if !ok {
		return nil, false
	}
	return e.queue, true
}

// Remove drops a stream from the registry entirely (test/admin use).
func (m *Manager) Remove(streamID string) {
	m.mu.Lock()
	delete(m.streams, streamID)
	m.mu.Unlock()
}

func (m *Manager) entry(streamID string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.streams[streamID]
	return e, ok
}

// SweepLiveness marks streams whose last_ping exceeds pingTimeout as
// disconnected, per spec.md §4.2.
func (m *Manager) SweepLiveness(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.streams))
	for id, e := range m.streams {
		e.mu.Lock()
		stale := e.stream.Status != domain.StreamDisconnected && time.Since(e.stream.LastPing) > m.pingTimeout
		e.mu.Unlock()
		if stale {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.End(ctx, id); err != nil {
			m.logger.WithError(err).Warn("streams: liveness sweep failed to end stream")
		}
	}
}

// RunLivenessSweeper blocks, sweeping at the given interval until ctx is done.
func (m *Manager) RunLivenessSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepLiveness(ctx)
		}
	}
}
