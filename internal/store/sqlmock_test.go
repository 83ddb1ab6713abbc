package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"smartclip/internal/clip"
)

func setupMock(t *testing.T) (*Store, sqlmock.Sqlmock, *testClock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	clock := newTestClock()
	return New(db, WithClock(clock.Now)), mock, clock
}

func TestInsertOrBump_BeginError(t *testing.T) {
	s, mock, _ := setupMock(t)

	mock.ExpectBegin().WillReturnError(errors.New("disk I/O error"))

	_, _, err := s.InsertOrBump(context.Background(), &clip.Clip{Content: clip.Text("x")})
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if se.Op != "begin insert" {
		t.Errorf("unexpected op %q", se.Op)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestInsertOrBump_InsertErrorRollsBack(t *testing.T) {
	s, mock, _ := setupMock(t)
	content := clip.Text("payload")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM clips WHERE fingerprint = ?`)).
		WithArgs(clip.FingerprintOf(content).String()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO clips`)).
		WillReturnError(errors.New("database disk image is malformed"))
	mock.ExpectRollback()

	_, created, err := s.InsertOrBump(context.Background(), &clip.Clip{Content: content})
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "insert clip" {
		t.Fatalf("expected insert StorageError, got %v", err)
	}
	if created {
		t.Error("failed insert reported created")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestInsertOrBump_BumpUsesClock(t *testing.T) {
	s, mock, clock := setupMock(t)
	content := clip.Text("again")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM clips WHERE fingerprint = ?`)).
		WithArgs(clip.FingerprintOf(content).String()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE clips SET created_at = ? WHERE id = ?`)).
		WithArgs(clock.Now().UnixNano(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, created, err := s.InsertOrBump(context.Background(), &clip.Clip{Content: content})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 7 || created {
		t.Errorf("got id=%d created=%v, want 7 false", id, created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestExpireOTPs_Error(t *testing.T) {
	s, mock, clock := setupMock(t)

	cutoff := clock.Now().Add(-time.Minute).UnixNano()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM clips WHERE is_otp = 1 AND created_at < ?`)).
		WithArgs(cutoff).
		WillReturnError(errors.New("db fail"))

	_, err := s.ExpireOTPs(context.Background(), time.Minute)
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGet_CorruptRow(t *testing.T) {
	s, mock, _ := setupMock(t)

	fp := clip.FingerprintOf(clip.Text("t")).String()
	rows := sqlmock.NewRows([]string{"id", "kind", "text", "image", "created_at", "pinned", "is_otp", "fingerprint"}).
		AddRow(int64(1), "image", "t", nil, int64(1), int64(0), int64(0), fp)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM clips WHERE id = ?`)).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	_, err := s.Get(context.Background(), 1)
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "decode clip" {
		t.Fatalf("expected decode StorageError, got %v", err)
	}
}

func TestList_QueryError(t *testing.T) {
	s, mock, _ := setupMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY pinned DESC, created_at DESC, id DESC`)).
		WithArgs(DefaultListLimit, 0).
		WillReturnError(errors.New("locked"))

	_, err := s.List(context.Background(), -1, -5)
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTogglePin_NotFoundRollsBack(t *testing.T) {
	s, mock, _ := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE clips SET pinned`)).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.TogglePin(context.Background(), 9)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
