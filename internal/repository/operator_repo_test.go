package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"drone_commander/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	_ "modernc.org/sqlite"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newMockOperatorRepo(t *testing.T) (*OperatorSQLite, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	repo := NewOperatorSQLite(db)
	repo.now = func() time.Time { return fixedNow }
	cleanup := func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	}
	return repo, mock, cleanup
}

func TestOperatorSQLite_Create(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		hash        string
		mockExpect  func(sqlmock.Sqlmock)
		wantID      int
		errContains string
	}{
		{
			name:     "success",
			username: "pilot",
			hash:     "h123",
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("pilot", "h123", fixedNow).
					WillReturnResult(sqlmock.NewResult(42, 1))
			},
			wantID: 42,
		},
		{
			name:     "exec error",
			username: "copilot",
			hash:     "h456",
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("copilot", "h456", fixedNow).
					WillReturnError(errors.New("disk I/O error"))
			},
			errContains: "insert operator",
		},
		{
			name:     "last insert id error",
			username: "spotter",
			hash:     "h789",
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("spotter", "h789", fixedNow).
					WillReturnResult(sqlmock.NewErrorResult(errors.New("no last id")))
			},
			errContains: "get last insert id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := newMockOperatorRepo(t)
			defer cleanup()
			tt.mockExpect(mock)

			id, err := repo.Create(context.Background(), tt.username, tt.hash)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("expected error containing %q, got %v", tt.errContains, err)
				}
				if id != 0 {
					t.Fatalf("expected id=0 on error, got %d", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Fatalf("unexpected id: want %d, got %d", tt.wantID, id)
			}
		})
	}
}

func TestOperatorSQLite_Lookups(t *testing.T) {
	columns := []string{"id", "username", "password_hash", "created_at"}
	created := fixedNow.In(time.FixedZone("CEST", 2*3600))

	t.Run("by username found", func(t *testing.T) {
		repo, mock, cleanup := newMockOperatorRepo(t)
		defer cleanup()
		mock.ExpectQuery(regexp.QuoteMeta(selectOperatorByName)).
			WithArgs("pilot").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(7, "pilot", "h123", created))

		op, err := repo.ByUsername(context.Background(), "pilot")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := &models.Operator{ID: 7, Username: "pilot", PasswordHash: "h123", CreatedAt: fixedNow}
		if op == nil || op.ID != want.ID || op.Username != want.Username || op.PasswordHash != want.PasswordHash {
			t.Fatalf("unexpected operator: %+v", op)
		}
		if op.CreatedAt.Location() != time.UTC || !op.CreatedAt.Equal(fixedNow) {
			t.Fatalf("created_at must come back in UTC, got %v", op.CreatedAt)
		}
	})

	t.Run("by username missing", func(t *testing.T) {
		repo, mock, cleanup := newMockOperatorRepo(t)
		defer cleanup()
		mock.ExpectQuery(regexp.QuoteMeta(selectOperatorByName)).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		op, err := repo.ByUsername(context.Background(), "ghost")
		if err != nil || op != nil {
			t.Fatalf("expected (nil, nil), got (%+v, %v)", op, err)
		}
	})

	t.Run("by id query error", func(t *testing.T) {
		repo, mock, cleanup := newMockOperatorRepo(t)
		defer cleanup()
		mock.ExpectQuery(regexp.QuoteMeta(selectOperatorByID)).
			WithArgs(9).
			WillReturnError(errors.New("db query failed"))

		op, err := repo.ByID(context.Background(), 9)
		if err == nil || !strings.Contains(err.Error(), "select operator 9") {
			t.Fatalf("expected wrapped query error, got %v", err)
		}
		if op != nil {
			t.Fatalf("expected nil operator on error, got %+v", op)
		}
	})
}

// The unique constraint is only observable on a real database.
func TestOperatorSQLite_DuplicateUsername(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE operators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	repo := NewOperatorSQLite(db)
	ctx := context.Background()
	id, err := repo.Create(ctx, "Pilot", "h1")
	if err != nil || id != 1 {
		t.Fatalf("first create: id=%d err=%v", id, err)
	}
	if _, err := repo.Create(ctx, "pilot", "h2"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	op, err := repo.ByID(ctx, 1)
	if err != nil || op == nil || op.Username != "Pilot" {
		t.Fatalf("ByID: %+v, %v", op, err)
	}
}
