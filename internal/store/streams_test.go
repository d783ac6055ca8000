package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"

	"lighthouse/internal/domain"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, logrus.New()), mock
}

func TestInsertStream(t *testing.T) {
	s, mock := newTestStore(t)

	st := &domain.Stream{
		ID:        "stream-1",
		Scenario:  domain.ScenarioBaby,
		Status:    domain.StreamActive,
		StartedAt: time.Now(),
		LastPing:  time.Now(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO streams").WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.InsertStream(context.Background(), st); err != nil {
		t.Fatalf("InsertStream: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetStream_NotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("FROM streams").WithArgs("missing").WillReturnError(sqlmock.ErrCancelled)

	if _, err := s.GetStream(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing stream")
	}
}

func TestGetStream_Found(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "name", "user_id", "scenario", "status", "started_at",
		"ended_at", "frame_count", "alert_count", "last_ping", "preferences", "created_at", "updated_at"}).
		AddRow("stream-1", "living room", "user-1", "pet", "active", now, nil, int64(10), int64(1), now, nil, now, now)

	mock.ExpectQuery("FROM streams").WithArgs("stream-1").WillReturnRows(rows)

	st, err := s.GetStream(context.Background(), "stream-1")
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if st.Scenario != domain.ScenarioPet {
		t.Fatalf("expected scenario pet, got %s", st.Scenario)
	}
	if st.FrameCount != 10 {
		t.Fatalf("expected frame_count 10, got %d", st.FrameCount)
	}
}

func TestListActiveStreams_ExcludesDisconnected(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "name", "user_id", "scenario", "status", "started_at",
		"ended_at", "frame_count", "alert_count", "last_ping", "preferences", "created_at", "updated_at"}).
		AddRow("stream-1", "kitchen", "", "pet", "active", now, nil, int64(0), int64(0), now, nil, now, now).
		AddRow("stream-2", "nursery", "", "baby", "paused", now, nil, int64(0), int64(0), now, nil, now, now)

	mock.ExpectQuery("status != 'disconnected'").WillReturnRows(rows)

	out, err := s.ListActiveStreams(context.Background())
	if err != nil {
		t.Fatalf("ListActiveStreams: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(out))
	}
}
