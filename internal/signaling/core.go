package signaling

import (
	"time"

	"github.com/gorilla/websocket"

	"lighthouse/internal/apierr"
	"lighthouse/internal/domain"
	"lighthouse/pkg/logging"
)

// New builds an empty Switch.
func New(logger logging.Logger, cfg Config) *Switch {
	return &Switch{
		peers:  make(map[string]*peer),
		rooms:  make(map[string]*room),
		cfg:    cfg,
		logger: logger,
	}
}

// registerPeer adds a peer with no room binding; used by the transport
// layer right after a socket upgrade.
func (s *Switch) registerPeer(id string, conn *websocket.Conn, send chan domain.Envelope) *peer {
	p := &peer{id: id, conn: conn, send: send, logger: s.logger}
	s.peersMu.Lock()
	s.peers[id] = p
	s.peersMu.Unlock()
	return p
}

// Join binds a peer to a room, per spec.md §4.6: leaves any current room
// first, enforces the single-broadcaster and viewer-cap rules.
func (s *Switch) Join(peerID, roomID string, isBroadcaster bool) (domain.RoomInfo, error) {
	s.leaveCurrentRoom(peerID)

	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		if len(s.rooms) >= s.cfg.MaxRooms {
			return domain.RoomInfo{}, apierr.New(apierr.BoundsExceeded, "max_rooms exceeded")
		}
		r = &room{id: roomID, viewerPeerIDs: make(map[string]bool), createdAt: time.Now(), lastActivity: time.Now()}
		s.rooms[roomID] = r
	}

	if isBroadcaster {
		if r.broadcasterPeerID != "" && r.broadcasterPeerID != peerID {
			return domain.RoomInfo{}, apierr.New(apierr.Conflict, "room already has a broadcaster")
		}
		r.broadcasterPeerID = peerID
	} else {
		if _, already := r.viewerPeerIDs[peerID]; !already && len(r.viewerPeerIDs) >= s.cfg.MaxViewersPerRoom {
			return domain.RoomInfo{}, apierr.New(apierr.BoundsExceeded, "max_viewers_per_room exceeded")
		}
		r.viewerPeerIDs[peerID] = true
	}
	r.lastActivity = time.Now()

	s.setPeerRoom(peerID, roomID, isBroadcaster)

	return snapshotRoom(r), nil
}

// Leave removes a peer from its current room, if any, notifying the
// remaining occupants per spec.md §4.6's disconnect rule.
func (s *Switch) Leave(peerID string) {
	s.leaveCurrentRoom(peerID)
}

func (s *Switch) leaveCurrentRoom(peerID string) {
	s.peersMu.RLock()
	p, ok := s.peers[peerID]
	s.peersMu.RUnlock()
	if !ok || p.roomID == "" {
		return
	}
	roomID := p.roomID
	wasBroadcaster := p.isBroadcaster

	s.roomsMu.Lock()
	r, ok := s.rooms[roomID]
	if ok {
		if wasBroadcaster && r.broadcasterPeerID == peerID {
			r.broadcasterPeerID = ""
		}
		delete(r.viewerPeerIDs, peerID)
		r.lastActivity = time.Now()
	}
	s.roomsMu.Unlock()

	s.setPeerRoom(peerID, "", false)

	if !ok {
		return
	}

	// Notify remaining occupants outside the lock.
	if wasBroadcaster {
		for _, viewerID := range s.roomViewerIDs(roomID) {
			s.deliver(viewerID, domain.Envelope{Type: domain.SignalPeerLeft, RoomID: roomID, PeerID: peerID, Timestamp: time.Now()})
		}
	} else if broadcaster, ok := s.roomBroadcaster(roomID); ok {
		s.deliver(broadcaster, domain.Envelope{Type: domain.SignalPeerLeft, RoomID: roomID, PeerID: peerID, Timestamp: time.Now()})
	}
}

// Relay forwards offer/answer/ice-candidate frames to exactly one target
// peer in the same room (spec.md §4.6).
func (s *Switch) Relay(fromPeerID string, env domain.Envelope) error {
	if env.TargetPeerID == "" {
		return apierr.New(apierr.InvalidInput, "relay requires target_peer_id")
	}

	s.peersMu.RLock()
	from, fromOK := s.peers[fromPeerID]
	to, toOK := s.peers[env.TargetPeerID]
	s.peersMu.RUnlock()

	if !fromOK || !toOK {
		return apierr.New(apierr.NotFound, "peer not found")
	}
	if from.roomID == "" || from.roomID != to.roomID {
		return apierr.New(apierr.Conflict, "target peer is not in the same room")
	}

	env.PeerID = fromPeerID
	env.Timestamp = time.Now()
	s.touchRoom(from.roomID)
	s.deliver(env.TargetPeerID, env)
	return nil
}

func (s *Switch) deliver(peerID string, env domain.Envelope) {
	s.peersMu.RLock()
	p, ok := s.peers[peerID]
	s.peersMu.RUnlock()
	if !ok {
		return
	}
	select {
	case p.send <- env:
	default:
		s.logger.WithFields(logging.Fields{"peer_id": peerID}).Warn("signaling: peer send buffer full, dropping frame")
	}
}

func (s *Switch) setPeerRoom(peerID, roomID string, isBroadcaster bool) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	if p, ok := s.peers[peerID]; ok {
		p.roomID = roomID
		p.isBroadcaster = isBroadcaster
	}
}

func (s *Switch) roomViewerIDs(roomID string) []string {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(r.viewerPeerIDs))
	for id := range r.viewerPeerIDs {
		out = append(out, id)
	}
	return out
}

func (s *Switch) roomBroadcaster(roomID string) (string, bool) {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok || r.broadcasterPeerID == "" {
		return "", false
	}
	return r.broadcasterPeerID, true
}

func (s *Switch) touchRoom(roomID string) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		r.lastActivity = time.Now()
	}
}

// RoomInfo returns a snapshot of a room.
func (s *Switch) RoomInfo(roomID string) (domain.RoomInfo, bool) {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return domain.RoomInfo{}, false
	}
	return snapshotRoom(r), true
}

func snapshotRoom(r *room) domain.RoomInfo {
	viewers := make([]string, 0, len(r.viewerPeerIDs))
	for id := range r.viewerPeerIDs {
		viewers = append(viewers, id)
	}
	return domain.RoomInfo{
		ID:                r.id,
		BroadcasterPeerID: r.broadcasterPeerID,
		ViewerPeerIDs:     viewers,
		CreatedAt:         r.createdAt,
		LastActivity:      r.lastActivity,
	}
}

// removePeer forgets a peer entirely; called on socket close.
func (s *Switch) removePeer(peerID string) {
	s.Leave(peerID)
	s.peersMu.Lock()
	delete(s.peers, peerID)
	s.peersMu.Unlock()
}

// SweepStaleRooms deletes rooms with no broadcaster, zero viewers, and
// last_activity older than RoomTimeout (spec.md §4.6).
func (s *Switch) SweepStaleRooms() {
	cutoff := time.Now().Add(-s.cfg.RoomTimeout)

	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	for id, r := range s.rooms {
		if r.broadcasterPeerID == "" && len(r.viewerPeerIDs) == 0 && r.lastActivity.Before(cutoff) {
			delete(s.rooms, id)
		}
	}
}

// RunStaleRoomSweeper blocks, sweeping at the given interval until done is closed.
func (s *Switch) RunStaleRoomSweeper(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.SweepStaleRooms()
		}
	}
}
