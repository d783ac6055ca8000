package signaling

import (
	"testing"
	"time"

	"lighthouse/internal/apierr"
	"lighthouse/internal/domain"
	"lighthouse/pkg/logging"
)

func newTestSwitch(cfg Config) *Switch {
	return New(logging.NewLogger(), cfg)
}

func drain(p *peer) *domain.Envelope {
	select {
	case env := <-p.send:
		return &env
	default:
		return nil
	}
}

func TestJoin_SecondBroadcasterRejected(t *testing.T) {
	sw := newTestSwitch(DefaultConfig())
	sw.registerPeer("a", nil, make(chan domain.Envelope, 4))
	sw.registerPeer("b", nil, make(chan domain.Envelope, 4))

	if _, err := sw.Join("a", "room-1", true); err != nil {
		t.Fatalf("first broadcaster join: %v", err)
	}
	_, err := sw.Join("b", "room-1", true)
	if err == nil {
		t.Fatal("expected second broadcaster join to be rejected")
	}
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.Conflict {
		t.Fatalf("expected conflict kind, got %v", err)
	}
}

func TestJoin_IncumbentBroadcasterMayRejoin(t *testing.T) {
	sw := newTestSwitch(DefaultConfig())
	sw.registerPeer("a", nil, make(chan domain.Envelope, 4))

	if _, err := sw.Join("a", "room-1", true); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := sw.Join("a", "room-1", true); err != nil {
		t.Fatalf("incumbent rejoin should succeed: %v", err)
	}
}

func TestJoin_ViewerCapEnforced(t *testing.T) {
	sw := newTestSwitch(Config{MaxRooms: 10, MaxViewersPerRoom: 2, RoomTimeout: time.Minute})
	for _, id := range []string{"v1", "v2", "v3"} {
		sw.registerPeer(id, nil, make(chan domain.Envelope, 4))
	}

	if _, err := sw.Join("v1", "room-1", false); err != nil {
		t.Fatalf("v1 join: %v", err)
	}
	if _, err := sw.Join("v2", "room-1", false); err != nil {
		t.Fatalf("v2 join: %v", err)
	}
	_, err := sw.Join("v3", "room-1", false)
	if err == nil {
		t.Fatal("expected max+1th viewer to be rejected")
	}
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.BoundsExceeded {
		t.Fatalf("expected bounds-exceeded kind, got %v", err)
	}

	info, ok := sw.RoomInfo("room-1")
	if !ok || len(info.ViewerPeerIDs) != 2 {
		t.Fatalf("expected existing viewers unaffected, got %+v", info)
	}
}

func TestPeer_BelongsToAtMostOneRoom(t *testing.T) {
	sw := newTestSwitch(DefaultConfig())
	sw.registerPeer("v1", nil, make(chan domain.Envelope, 4))

	if _, err := sw.Join("v1", "room-1", false); err != nil {
		t.Fatalf("join room-1: %v", err)
	}
	if _, err := sw.Join("v1", "room-2", false); err != nil {
		t.Fatalf("join room-2: %v", err)
	}

	r1, ok := sw.RoomInfo("room-1")
	if !ok {
		t.Fatal("room-1 should still exist")
	}
	if len(r1.ViewerPeerIDs) != 0 {
		t.Fatalf("expected peer removed from room-1 after switching rooms, got %+v", r1)
	}
	r2, ok := sw.RoomInfo("room-2")
	if !ok || len(r2.ViewerPeerIDs) != 1 {
		t.Fatalf("expected peer present in room-2, got %+v", r2)
	}
}

func TestRelay_OfferThenAnswer(t *testing.T) {
	sw := newTestSwitch(DefaultConfig())
	a := sw.registerPeer("a", nil, make(chan domain.Envelope, 4))
	b := sw.registerPeer("b", nil, make(chan domain.Envelope, 4))

	if _, err := sw.Join("a", "room-1", true); err != nil {
		t.Fatalf("a join: %v", err)
	}
	if _, err := sw.Join("b", "room-1", false); err != nil {
		t.Fatalf("b join: %v", err)
	}

	if err := sw.Relay("b", domain.Envelope{Type: domain.SignalOffer, TargetPeerID: "a", Payload: "sdp-offer"}); err != nil {
		t.Fatalf("relay offer: %v", err)
	}
	got := drain(a)
	if got == nil || got.Type != domain.SignalOffer || got.PeerID != "b" {
		t.Fatalf("expected a to receive offer from b, got %+v", got)
	}

	if err := sw.Relay("a", domain.Envelope{Type: domain.SignalAnswer, TargetPeerID: "b", Payload: "sdp-answer"}); err != nil {
		t.Fatalf("relay answer: %v", err)
	}
	got = drain(b)
	if got == nil || got.Type != domain.SignalAnswer || got.PeerID != "a" {
		t.Fatalf("expected b to receive answer from a, got %+v", got)
	}
}

func TestRelay_RejectsCrossRoomTarget(t *testing.T) {
	sw := newTestSwitch(DefaultConfig())
	sw.registerPeer("a", nil, make(chan domain.Envelope, 4))
	sw.registerPeer("c", nil, make(chan domain.Envelope, 4))

	if _, err := sw.Join("a", "room-1", true); err != nil {
		t.Fatalf("a join: %v", err)
	}
	if _, err := sw.Join("c", "room-2", true); err != nil {
		t.Fatalf("c join: %v", err)
	}

	err := sw.Relay("a", domain.Envelope{Type: domain.SignalOffer, TargetPeerID: "c"})
	if err == nil {
		t.Fatal("expected cross-room relay to be rejected")
	}
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.Conflict {
		t.Fatalf("expected conflict kind, got %v", err)
	}
}

func TestLeave_BroadcasterNotifiesAllViewers(t *testing.T) {
	sw := newTestSwitch(DefaultConfig())
	sw.registerPeer("a", nil, make(chan domain.Envelope, 4))
	v1 := sw.registerPeer("v1", nil, make(chan domain.Envelope, 4))
	v2 := sw.registerPeer("v2", nil, make(chan domain.Envelope, 4))

	if _, err := sw.Join("a", "room-1", true); err != nil {
		t.Fatalf("a join: %v", err)
	}
	if _, err := sw.Join("v1", "room-1", false); err != nil {
		t.Fatalf("v1 join: %v", err)
	}
	if _, err := sw.Join("v2", "room-1", false); err != nil {
		t.Fatalf("v2 join: %v", err)
	}

	sw.Leave("a")

	for _, v := range []*peer{v1, v2} {
		got := drain(v)
		if got == nil || got.Type != domain.SignalPeerLeft || got.PeerID != "a" {
			t.Fatalf("expected viewer to receive peer-left for broadcaster, got %+v", got)
		}
	}

	info, ok := sw.RoomInfo("room-1")
	if !ok || info.BroadcasterPeerID != "" {
		t.Fatalf("expected room to have no broadcaster after leave, got %+v", info)
	}
}

func TestLeave_ViewerNotifiesOnlyBroadcaster(t *testing.T) {
	sw := newTestSwitch(DefaultConfig())
	a := sw.registerPeer("a", nil, make(chan domain.Envelope, 4))
	sw.registerPeer("v1", nil, make(chan domain.Envelope, 4))

	if _, err := sw.Join("a", "room-1", true); err != nil {
		t.Fatalf("a join: %v", err)
	}
	if _, err := sw.Join("v1", "room-1", false); err != nil {
		t.Fatalf("v1 join: %v", err)
	}

	sw.Leave("v1")

	got := drain(a)
	if got == nil || got.Type != domain.SignalPeerLeft || got.PeerID != "v1" {
		t.Fatalf("expected broadcaster to receive peer-left for viewer, got %+v", got)
	}
}

func TestSweepStaleRooms_DeletesEmptyIdleRooms(t *testing.T) {
	sw := newTestSwitch(Config{MaxRooms: 10, MaxViewersPerRoom: 10, RoomTimeout: 10 * time.Millisecond})
	sw.registerPeer("a", nil, make(chan domain.Envelope, 4))

	if _, err := sw.Join("a", "room-1", true); err != nil {
		t.Fatalf("join: %v", err)
	}
	sw.Leave("a")

	time.Sleep(20 * time.Millisecond)
	sw.SweepStaleRooms()

	if _, ok := sw.RoomInfo("room-1"); ok {
		t.Fatal("expected stale empty room to be swept")
	}
}

func TestMaxRooms_Enforced(t *testing.T) {
	sw := newTestSwitch(Config{MaxRooms: 1, MaxViewersPerRoom: 10, RoomTimeout: time.Minute})
	sw.registerPeer("a", nil, make(chan domain.Envelope, 4))
	sw.registerPeer("b", nil, make(chan domain.Envelope, 4))

	if _, err := sw.Join("a", "room-1", true); err != nil {
		t.Fatalf("join room-1: %v", err)
	}
	_, err := sw.Join("b", "room-2", true)
	if err == nil {
		t.Fatal("expected max_rooms to be enforced")
	}
}
