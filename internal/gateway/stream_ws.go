package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lighthouse/internal/domain"
	"lighthouse/internal/escalation"
)

// Frame intake/push socket constants, mirrored from the signaling
// Switch's read/write pump idiom (internal/signaling/signaling.go).
const (
	frameWriteWait  = 10 * time.Second
	framePongWait   = 60 * time.Second
	framePingPeriod = (framePongWait * 9) / 10
	frameMaxMessage = 1 << 20
)

var frameUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientFrame is a frame the /ws/stream/:id caller sends.
type clientFrame struct {
	Type        string  `json:"type"`
	Data        string  `json:"data,omitempty"`
	MotionScore float64 `json:"motion_score,omitempty"`
	AudioLevel  float64 `json:"audio_level,omitempty"`
	AlertID     string  `json:"alert_id,omitempty"`
}

// serverFrame is a frame the gateway pushes back.
type serverFrame struct {
	Type         string        `json:"type"`
	OriginalType string        `json:"original_type,omitempty"`
	StreamID     string        `json:"stream_id,omitempty"`
	Alert        *domain.Alert `json:"alert,omitempty"`
	AlertID      string        `json:"alert_id,omitempty"`
	Level        int           `json:"level,omitempty"`
	Volume       int           `json:"volume,omitempty"`
	Sound        string        `json:"sound,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// frameConn is the registered socket for one stream's frame intake.
type frameConn struct {
	conn *websocket.Conn
	send chan serverFrame
}

func (c *frameConn) Close() error { return c.conn.Close() }

// Broadcaster tracks at most one live frame socket per stream id, so the
// Pipeline's alert observer and the Escalation Engine's step events know
// where to push (SPEC_FULL.md §4.4/§4.3 fan back to the camera socket).
// Grounded on streams.Manager's single-socket-per-entry pattern,
// generalized into a standalone registry: the Manager's own Socket
// interface only exposes Close, with no send path, and both the Engine
// and the Pipeline are constructed before the Handlers that would
// otherwise own this, so the registry has to stand on its own.
type Broadcaster struct {
	mu    sync.RWMutex
	conns map[string]*frameConn
}

// NewBroadcaster builds an empty registry, constructed ahead of the
// Pipeline, Escalation Engine, and Gateway Handlers that all reference it.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{conns: make(map[string]*frameConn)}
}

func (b *Broadcaster) register(streamID string, c *frameConn) {
	b.mu.Lock()
	b.conns[streamID] = c
	b.mu.Unlock()
}

func (b *Broadcaster) unregister(streamID string) {
	b.mu.Lock()
	delete(b.conns, streamID)
	b.mu.Unlock()
}

func (b *Broadcaster) push(streamID string, msg serverFrame) {
	b.mu.RLock()
	c, ok := b.conns[streamID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// PushAlert is installed as the Pipeline's AlertHandler: it forwards a
// newly created Alert to its stream's frame socket, if one is connected.
func (b *Broadcaster) PushAlert(a domain.Alert) {
	alert := a
	b.push(a.StreamID, serverFrame{Type: "alert", StreamID: a.StreamID, Alert: &alert})
}

// PushEscalation is installed as the Escalation Engine's onEvent
// callback (wired at construction time in cmd/lighthouse, ahead of the
// Gateway's own construction).
func (b *Broadcaster) PushEscalation(ev escalation.Event) {
	b.push(ev.StreamID, serverFrame{
		Type: "escalation", StreamID: ev.StreamID, AlertID: ev.AlertID,
		Level: ev.Level, Volume: ev.Volume, Sound: ev.Sound,
	})
}

// serveStreamWS upgrades the connection, binds it as the stream's sole
// frame-intake socket, and runs its read/write pumps until it closes.
func (h *Handlers) serveStreamWS(c *gin.Context) {
	streamID := c.Param("id")
	if _, ok := h.streams.Get(streamID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "stream not found"})
		return
	}

	conn, err := frameUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("gateway: frame socket upgrade failed")
		return
	}

	fc := &frameConn{conn: conn, send: make(chan serverFrame, 16)}
	bound, err := h.streams.AttachSocket(streamID, fc)
	if err != nil || !bound {
		conn.WriteJSON(serverFrame{Type: "error", Message: "stream already has a bound socket"})
		conn.Close()
		return
	}

	h.broadcaster.register(streamID, fc)
	fc.send <- serverFrame{Type: "connected", StreamID: streamID}

	go h.frameWritePump(fc)
	h.frameReadPump(streamID, fc)
}

func (h *Handlers) frameReadPump(streamID string, fc *frameConn) {
	defer func() {
		h.broadcaster.unregister(streamID)
		fc.conn.Close()
	}()

	fc.conn.SetReadLimit(frameMaxMessage)
	fc.conn.SetReadDeadline(time.Now().Add(framePongWait))
	fc.conn.SetPongHandler(func(string) error {
		fc.conn.SetReadDeadline(time.Now().Add(framePongWait))
		return nil
	})

	for {
		_, raw, err := fc.conn.ReadMessage()
		if err != nil {
			return
		}

		var in clientFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			fc.send <- serverFrame{Type: "error", Message: "malformed frame"}
			continue
		}
		h.handleClientFrame(streamID, fc, in)
	}
}

func (h *Handlers) handleClientFrame(streamID string, fc *frameConn, in clientFrame) {
	switch in.Type {
	case "subscribe":
		fc.send <- serverFrame{Type: "ack", OriginalType: in.Type}
	case "ping":
		h.streams.UpdatePing(streamID)
		fc.send <- serverFrame{Type: "ack", OriginalType: in.Type}
	case "ack":
		h.engine.Acknowledge(in.AlertID)
		fc.send <- serverFrame{Type: "ack", OriginalType: in.Type, AlertID: in.AlertID}
	case "frame":
		payload, err := base64.StdEncoding.DecodeString(in.Data)
		if err != nil {
			fc.send <- serverFrame{Type: "error", Message: "frame data must be base64"}
			return
		}
		f := domain.Frame{
			ID: uuid.NewString(), StreamID: streamID, CapturedAt: time.Now(),
			Payload: payload, MotionScore: in.MotionScore, AudioLevel: in.AudioLevel,
		}
		if err := h.pipeline.Enqueue(streamID, f); err != nil {
			fc.send <- serverFrame{Type: "error", Message: err.Error()}
			return
		}
		fc.send <- serverFrame{Type: "frame_received", StreamID: streamID}
	default:
		fc.send <- serverFrame{Type: "error", Message: "unknown frame type"}
	}
}

func (h *Handlers) frameWritePump(fc *frameConn) {
	ticker := time.NewTicker(framePingPeriod)
	defer func() {
		ticker.Stop()
		fc.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-fc.send:
			fc.conn.SetWriteDeadline(time.Now().Add(frameWriteWait))
			if !ok {
				fc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := fc.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			fc.conn.SetWriteDeadline(time.Now().Add(frameWriteWait))
			if err := fc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
