package domain

import "time"

// PeerRole distinguishes the single broadcaster from viewers in a Room.
type PeerRole string

const (
	RoleBroadcaster PeerRole = "broadcaster"
	RoleViewer      PeerRole = "viewer"
)

// RoomInfo is the server-origin snapshot sent to peers on join/leave.
type RoomInfo struct {
	ID                string    `json:"id"`
	BroadcasterPeerID string    `json:"broadcaster_peer_id,omitempty"`
	ViewerPeerIDs     []string  `json:"viewer_peer_ids"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivity      time.Time `json:"last_activity"`
}

// SignalType enumerates the typed signaling frame kinds (SPEC_FULL.md §4.6).
type SignalType string

const (
	SignalJoin         SignalType = "join"
	SignalLeave        SignalType = "leave"
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
	SignalPeerJoined   SignalType = "peer-joined"
	SignalPeerLeft     SignalType = "peer-left"
	SignalRoomInfo     SignalType = "room-info"
	SignalError        SignalType = "error"
)

// Envelope is the wire shape for every signaling message.
type Envelope struct {
	Type          SignalType  `json:"type"`
	RoomID        string      `json:"room_id,omitempty"`
	PeerID        string      `json:"peer_id,omitempty"`
	TargetPeerID  string      `json:"target_peer_id,omitempty"`
	Payload       interface{} `json:"payload,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	IsBroadcaster bool        `json:"is_broadcaster,omitempty"`
	Message       string      `json:"message,omitempty"`
}
