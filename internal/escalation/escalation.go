// Package escalation implements the per-alert timer ladder that ramps
// severity, volume, and notification channel set until acknowledged
// (SPEC_FULL.md component: Escalation Engine).
package escalation

import (
	"sync"
	"time"

	"lighthouse/internal/domain"
	"lighthouse/pkg/logging"
)

// Step is one rung of the fixed ladder (spec.md §4.4).
type Step struct {
	Level          int
	CumulativeSecs int
	Volume         int
	Sound          string
	Channels       []domain.ChannelKind
}

// Ladder is the fixed escalation table, ordered by level.
var Ladder = []Step{
	{Level: 0, CumulativeSecs: 0, Volume: 0, Sound: "none", Channels: nil},
	{Level: 1, CumulativeSecs: 15, Volume: 10, Sound: "chime", Channels: []domain.ChannelKind{domain.ChannelPush}},
	{Level: 2, CumulativeSecs: 45, Volume: 25, Sound: "alert", Channels: []domain.ChannelKind{domain.ChannelPush}},
	{Level: 3, CumulativeSecs: 105, Volume: 50, Sound: "alarm", Channels: []domain.ChannelKind{domain.ChannelPush, domain.ChannelChat}},
	{Level: 4, CumulativeSecs: 225, Volume: 100, Sound: "critical", Channels: []domain.ChannelKind{domain.ChannelPush, domain.ChannelSMS, domain.ChannelChat}},
}

// Event is emitted at each ladder step a caller should act on (e.g. fan
// out to the Notifier).
type Event struct {
	AlertID  string
	StreamID string
	Level    int
	Volume   int
	Sound    string
	Channels []domain.ChannelKind
}

type alertState struct {
	mu           sync.Mutex
	alert        domain.Alert
	createdAt    time.Time
	acknowledged bool
	timer        *time.Timer
	cancel       chan struct{}
}

// Engine tracks one goroutine-driven timer per active Alert (spec.md §9
// option (a): composes with context cancellation at stream teardown).
type Engine struct {
	mu     sync.RWMutex
	alerts map[string]*alertState
	logger logging.Logger

	onEvent func(Event)
}

// New builds an Engine. onEvent is invoked from the alert's own goroutine
// at every ladder step; it must not block.
func New(logger logging.Logger, onEvent func(Event)) *Engine {
	return &Engine{
		alerts:  make(map[string]*alertState),
		logger:  logger,
		onEvent: onEvent,
	}
}

// Start registers an Alert and begins its ladder at the level matching
// its severity (spec.md §4.4).
func (e *Engine) Start(alert domain.Alert) {
	startLevel := alert.Severity.StartLevel()
	alert.EscalationLevel = startLevel

	st := &alertState{
		alert:     alert,
		createdAt: time.Now(),
		cancel:    make(chan struct{}),
	}

	e.mu.Lock()
	e.alerts[alert.ID] = st
	e.mu.Unlock()

	go e.run(st, startLevel)
}

// run fires onEvent at startLevel immediately, then at each subsequent
// ladder boundary until acknowledged or the ladder tops out.
func (e *Engine) run(st *alertState, startLevel int) {
	for level := startLevel; level < len(Ladder); level++ {
		st.mu.Lock()
		acked := st.acknowledged
		st.mu.Unlock()
		if acked {
			return
		}

		step := Ladder[level]
		st.mu.Lock()
		st.alert.EscalationLevel = level
		st.mu.Unlock()

		if e.onEvent != nil {
			e.onEvent(Event{
				AlertID:  st.alert.ID,
				StreamID: st.alert.StreamID,
				Level:    level,
				Volume:   step.Volume,
				Sound:    step.Sound,
				Channels: step.Channels,
			})
		}

		if level == len(Ladder)-1 {
			return
		}

		wait := time.Duration(Ladder[level+1].CumulativeSecs-step.CumulativeSecs) * time.Second
		timer := time.NewTimer(wait)
		st.mu.Lock()
		st.timer = timer
		st.mu.Unlock()

		select {
		case <-timer.C:
			continue
		case <-st.cancel:
			timer.Stop()
			return
		}
	}
}

// Acknowledge stops further escalation for an alert. Idempotent: a
// second call on an already-acknowledged alert is a no-op returning true.
func (e *Engine) Acknowledge(alertID string) bool {
	e.mu.RLock()
	st, ok := e.alerts[alertID]
	e.mu.RUnlock()
	if !ok {
		return false
	}

	st.mu.Lock()
	already := st.acknowledged
	st.acknowledged = true
	if st.timer != nil {
		st.timer.Stop()
	}
	st.mu.Unlock()

	if !already {
		close(st.cancel)
	}
	return true
}

// Level returns an alert's current escalation level.
func (e *Engine) Level(alertID string) (int, bool) {
	e.mu.RLock()
	st, ok := e.alerts[alertID]
	e.mu.RUnlock()
	if !ok {
		return 0, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.alert.EscalationLevel, true
}

// Volume linearly interpolates volume between the current and next
// ladder step over the elapsed fraction of the gap (spec.md §4.4).
func (e *Engine) Volume(alertID string) (int, bool) {
	e.mu.RLock()
	st, ok := e.alerts[alertID]
	e.mu.RUnlock()
	if !ok {
		return 0, false
	}

	st.mu.Lock()
	level := st.alert.EscalationLevel
	startLevel := st.alert.Severity.StartLevel()
	createdAt := st.createdAt
	st.mu.Unlock()

	if level >= len(Ladder)-1 {
		return Ladder[len(Ladder)-1].Volume, true
	}

	cur := Ladder[level]
	next := Ladder[level+1]
	// The alert enters the ladder at its start step, and run waits gap by
	// gap from there, so ladder time is that step's offset plus wall time.
	elapsed := float64(Ladder[startLevel].CumulativeSecs) + time.Since(createdAt).Seconds()
	gapStart := float64(cur.CumulativeSecs)
	gapEnd := float64(next.CumulativeSecs)
	if gapEnd <= gapStart {
		return cur.Volume, true
	}

	frac := (elapsed - gapStart) / (gapEnd - gapStart)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	vol := float64(cur.Volume) + frac*float64(next.Volume-cur.Volume)
	return int(vol), true
}

// Sound returns an alert's current ladder step sound.
func (e *Engine) Sound(alertID string) (string, bool) {
	level, ok := e.Level(alertID)
	if !ok {
		return "", false
	}
	return Ladder[level].Sound, true
}

// Active lists every alert id not yet acknowledged.
func (e *Engine) Active() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.alerts))
	for id, st := range e.alerts {
		st.mu.Lock()
		acked := st.acknowledged
		st.mu.Unlock()
		if !acked {
			out = append(out, id)
		}
	}
	return out
}

// ClearAll acknowledges and forgets every tracked alert.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	alerts := e.alerts
	e.alerts = make(map[string]*alertState)
	e.mu.Unlock()

	for _, st := range alerts {
		st.mu.Lock()
		if !st.acknowledged {
			st.acknowledged = true
			if st.timer != nil {
				st.timer.Stop()
			}
			close(st.cancel)
		}
		st.mu.Unlock()
	}
}
