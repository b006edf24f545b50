package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"drone_commander/internal/models"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrUsernameTaken is returned by Create for a duplicate username. Names
// compare case-insensitively.
var ErrUsernameTaken = errors.New("username already taken")

type OperatorSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewOperatorSQLite(db *sql.DB) *OperatorSQLite {
	return &OperatorSQLite{db: db, now: time.Now}
}

var _ OperatorRepo = (*OperatorSQLite)(nil)

const (
	insertOperatorSQL     = `INSERT INTO operators (username, password_hash, created_at) VALUES (?, ?, ?)`
	selectOperatorColumns = `SELECT id, username, password_hash, created_at FROM operators`
	selectOperatorByName  = selectOperatorColumns + ` WHERE username = ?`
	selectOperatorByID    = selectOperatorColumns + ` WHERE id = ?`
)

// Create inserts a new operator and returns its ID.
func (r *OperatorSQLite) Create(ctx context.Context, username, passwordHash string) (int, error) {
	res, err := r.db.ExecContext(ctx, insertOperatorSQL, username, passwordHash, r.now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %q", ErrUsernameTaken, username)
		}
		return 0, fmt.Errorf("insert operator %q: %w", username, err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for operator %q: %w", username, err)
	}
	return int(lastID), nil
}

func (r *OperatorSQLite) ByUsername(ctx context.Context, username string) (*models.Operator, error) {
	op, err := r.scanOne(r.db.QueryRowContext(ctx, selectOperatorByName, username))
	if err != nil {
		return nil, fmt.Errorf("select operator %q: %w", username, err)
	}
	return op, nil
}

func (r *OperatorSQLite) ByID(ctx context.Context, id int) (*models.Operator, error) {
	op, err := r.scanOne(r.db.QueryRowContext(ctx, selectOperatorByID, id))
	if err != nil {
		return nil, fmt.Errorf("select operator %d: %w", id, err)
	}
	return op, nil
}

func (r *OperatorSQLite) scanOne(row *sql.Row) (*models.Operator, error) {
	var op models.Operator
	if err := row.Scan(&op.ID, &op.Username, &op.PasswordHash, &op.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	op.CreatedAt = op.CreatedAt.UTC()
	return &op, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
