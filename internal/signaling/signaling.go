// Package signaling relays WebRTC offer/answer/ICE frames between
// exactly the two peers named in a message, enforcing one-broadcaster
// and viewer-cap invariants per room (SPEC_FULL.md component: Signaling
// Switch). Keeps the teacher's websocket.Hub Client readPump/writePump
// pattern; room and peer state live in mutex-guarded maps rather than
// register/unregister/broadcast channels, and broadcast-to-all is
// replaced by targeted relay.
package signaling

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lighthouse/internal/domain"
	"lighthouse/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	relayDeadline  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Config bounds room and viewer counts (spec.md §6 configuration).
type Config struct {
	MaxRooms          int
	MaxViewersPerRoom int
	RoomTimeout       time.Duration
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{MaxRooms: 1000, MaxViewersPerRoom: 50, RoomTimeout: 5 * time.Minute}
}

type peer struct {
	id            string
	conn          *websocket.Conn
	send          chan domain.Envelope
	roomID        string
	isBroadcaster bool
	logger        logging.Logger
}

type room struct {
	id                string
	broadcasterPeerID string
	viewerPeerIDs     map[string]bool
	createdAt         time.Time
	lastActivity      time.Time
}

// Switch owns the room and peer directories. Each map has its own
// reader-writer mutex; relay sends happen outside the lock (spec.md §5).
type Switch struct {
	peersMu sync.RWMutex
	peers   map[string]*peer

	roomsMu sync.RWMutex
	rooms   map[string]*room

	cfg    Config
	logger logging.Logger
}
