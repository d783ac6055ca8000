package domain

import "time"

// Scenario selects the prompts and thresholds used for a stream.
type Scenario string

const (
	ScenarioPet      Scenario = "pet"
	ScenarioBaby     Scenario = "baby"
	ScenarioElderly  Scenario = "elderly"
)

// StreamStatus tracks the lifecycle of a Stream.
type StreamStatus string

const (
	StreamConnecting   StreamStatus = "connecting"
	StreamActive       StreamStatus = "active"
	StreamPaused       StreamStatus = "paused"
	StreamDisconnected StreamStatus = "disconnected"
)

// Preferences holds per-stream user configuration.
type Preferences struct {
	MotionSensitivity  float64 `json:"motion_sensitivity,omitempty"`
	AudioSensitivity   float64 `json:"audio_sensitivity,omitempty"`
	NotifyPush         bool    `json:"notify_push"`
	NotifySMS          bool    `json:"notify_sms"`
	NotifyChat         bool    `json:"notify_chat"`
}

// Stream represents a live monitoring session for one camera.
type Stream struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	Scenario    Scenario     `json:"scenario"`
	Status      StreamStatus `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	EndedAt     *time.Time   `json:"ended_at,omitempty"`
	FrameCount  int64        `json:"frame_count"`
	AlertCount  int64        `json:"alert_count"`
	LastPing    time.Time    `json:"last_ping"`
	Preferences *Preferences `json:"preferences,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Frame is an ephemeral unit of intake; it is never persisted.
type Frame struct {
	ID          string
	StreamID    string
	CapturedAt  time.Time
	Payload     []byte
	MotionScore float64
	AudioLevel  float64
	ZoneMask    []byte
}
