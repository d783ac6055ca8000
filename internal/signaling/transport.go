package signaling

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lighthouse/internal/domain"
	"lighthouse/pkg/logging"
)

// ServeWS upgrades the connection, assigns a peer id, and spawns the
// read/write pumps, mirroring the teacher's websocket.Hub.ServeWS.
func (s *Switch) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("signaling: upgrade failed")
		return
	}

	peerID := uuid.NewString()
	send := make(chan domain.Envelope, 16)
	p := s.registerPeer(peerID, conn, send)

	s.deliver(peerID, domain.Envelope{
		Type:      domain.SignalRoomInfo,
		PeerID:    peerID,
		Timestamp: time.Now(),
	})

	go s.writePump(p)
	go s.readPump(p)
}

func (s *Switch) readPump(p *peer) {
	defer func() {
		s.removePeer(p.id)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).WithFields(logging.Fields{"peer_id": p.id}).Warn("signaling: unexpected close")
			}
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.deliver(p.id, domain.Envelope{Type: domain.SignalError, Message: "malformed frame", Timestamp: time.Now()})
			continue
		}
		s.handleFrame(p, env)
	}
}

func (s *Switch) handleFrame(p *peer, env domain.Envelope) {
	switch env.Type {
	case domain.SignalJoin:
		info, err := s.Join(p.id, env.RoomID, env.IsBroadcaster)
		if err != nil {
			s.deliver(p.id, errorEnvelope(err))
			return
		}
		s.deliver(p.id, domain.Envelope{Type: domain.SignalRoomInfo, RoomID: info.ID, PeerID: p.id, Payload: info, Timestamp: time.Now()})
	case domain.SignalLeave:
		s.Leave(p.id)
	case domain.SignalOffer, domain.SignalAnswer, domain.SignalICECandidate:
		if err := s.Relay(p.id, env); err != nil {
			s.deliver(p.id, errorEnvelope(err))
		}
	default:
		s.deliver(p.id, domain.Envelope{Type: domain.SignalError, Message: "unknown frame type", Timestamp: time.Now()})
	}
}

func errorEnvelope(err error) domain.Envelope {
	return domain.Envelope{Type: domain.SignalError, Message: err.Error(), Timestamp: time.Now()}
}

func (s *Switch) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case env, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
