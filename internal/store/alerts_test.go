package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"

	"lighthouse/internal/domain"
)

func TestInsertAlertWithFlag_CommitsBothOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, logrus.New())

	alert := &domain.Alert{ID: "alert-1", StreamID: "stream-1", Type: domain.AlertAnalysis,
		Severity: domain.SeverityCritical, Title: "t", Body: "b", CreatedAt: time.Now()}
	flag := &domain.ContentFlag{ID: "flag-1", StreamID: "stream-1", Tier: 4,
		Categories: []string{"prohibited"}, Status: domain.FlagPending, CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO content_flags").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := s.InsertAlertWithFlag(context.Background(), alert, flag); err != nil {
		t.Fatalf("InsertAlertWithFlag: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertAlertWithFlag_RollsBackOnFlagFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, logrus.New())

	alert := &domain.Alert{ID: "alert-1", StreamID: "stream-1", CreatedAt: time.Now()}
	flag := &domain.ContentFlag{ID: "flag-1", StreamID: "stream-1", CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO content_flags").WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	if err := s.InsertAlertWithFlag(context.Background(), alert, flag); err == nil {
		t.Fatal("expected error when content flag insert fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAckAlert_IsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := New(db, logrus.New())

	mock.ExpectExec("UPDATE alerts SET acknowledged=true").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE alerts SET acknowledged=true").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.AckAlert(context.Background(), "alert-1", time.Now()); err != nil {
		t.Fatalf("first ack: %v", err)
	}
	if err := s.AckAlert(context.Background(), "alert-1", time.Now()); err != nil {
		t.Fatalf("second ack: %v", err)
	}
}
