package streams

import (
	"context"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"

	"lighthouse/internal/domain"
	"lighthouse/internal/store"
	"lighthouse/pkg/monitoring"
)

var (
	testMCOnce sync.Once
	testMC     *monitoring.MetricsCollector
)

func sharedTestMetricsCollector() *monitoring.MetricsCollector {
	testMCOnce.Do(func() {
		testMC = monitoring.NewMetricsCollector("lighthouse_test_streams", "test", "test")
	})
	return testMC
}

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db, logrus.New())
	return New(st, logrus.New(), sharedTestMetricsCollector(), DefaultConfig()), mock
}

func TestCreate_AssignsActiveStatus(t *testing.T) {
	m, mock := newTestManager(t)
	mock.ExpectExec("INSERT INTO streams").WillReturnResult(sqlmock.NewResult(1, 1))

	st, err := m.Create(context.Background(), "Front Door", domain.ScenarioPet, "user-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.Status != domain.StreamActive {
		t.Fatalf("expected active status, got %s", st.Status)
	}
	if st.FrameCount != 0 || st.AlertCount != 0 {
		t.Fatal("expected zeroed counters on create")
	}
}

type fakeSocket struct{ closed bool }

func (f *fakeSocket) Close() error { f.closed = true; return nil }

func TestAttachSocket_RejectsSecondBind(t *testing.T) {
	m, mock := newTestManager(t)
	mock.ExpectExec("INSERT INTO streams").WillReturnResult(sqlmock.NewResult(1, 1))

	st, err := m.Create(context.Background(), "", domain.ScenarioPet, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := m.AttachSocket(st.ID, &fakeSocket{})
	if err != nil || !ok {
		t.Fatalf("expected first attach to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = m.AttachSocket(st.ID, &fakeSocket{})
	if err != nil {
		t.Fatalf("unexpected error on second attach: %v", err)
	}
	if ok {
		t.Fatal("expected second attach to be rejected")
	}
}

func TestAttachSocket_MissingStream(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.AttachSocket("missing", &fakeSocket{})
	if err == nil {
		t.Fatal("expected error for missing stream")
	}
}

func TestEnd_ClosesSocketAndMarksDisconnected(t *testing.T) {
	m, mock := newTestManager(t)
	mock.ExpectExec("INSERT INTO streams").WillReturnResult(sqlmock.NewResult(1, 1))

	st, err := m.Create(context.Background(), "", domain.ScenarioElderly, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sock := &fakeSocket{}
	if _, err := m.AttachSocket(st.ID, sock); err != nil {
		t.Fatalf("AttachSocket: %v", err)
	}

	mock.ExpectExec("UPDATE streams").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := m.End(context.Background(), st.ID); err != nil {
		t.Fatalf("End: %v", err)
	}

	if !sock.closed {
		t.Fatal("expected socket to be closed on End")
	}

	got, ok := m.Get(st.ID)
	if !ok {
		t.Fatal("expected stream to still be retrievable after End")
	}
	if got.Status != domain.StreamDisconnected {
		t.Fatalf("expected disconnected status, got %s", got.Status)
	}
}

func TestIncFrames_TracksDropsSeparately(t *testing.T) {
	m, mock := newTestManager(t)
	mock.ExpectExec("INSERT INTO streams").WillReturnResult(sqlmock.NewResult(1, 1))

	st, err := m.Create(context.Background(), "", domain.ScenarioBaby, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	m.IncFrames(st.ID, false)
	m.IncFrames(st.ID, true)

	got, _ := m.Get(st.ID)
	if got.FrameCount != 2 {
		t.Fatalf("expected frame_count=2 regardless of drop, got %d", got.FrameCount)
	}
}
