package repository

import (
	"context"
	"database/sql"
	"time"

	"drone_commander/internal/models"
)

// OperatorRepo stores API accounts. Lookups return (nil, nil) when no
// operator matches.
type OperatorRepo interface {
	Create(ctx context.Context, username, hash string) (int, error)
	ByUsername(ctx context.Context, username string) (*models.Operator, error)
	ByID(ctx context.Context, id int) (*models.Operator, error)
}

type StateRepo interface {
	Save(ctx context.Context, s models.DroneState) error
	Load(ctx context.Context) (models.DroneState, error)
}

// EventFilter narrows List. Zero fields are ignored.
type EventFilter struct {
	SessionID    string
	From         time.Time
	To           time.Time
	Command      string // substring match
	TimedOutOnly bool
	Limit        int
}

type EventRepo interface {
	SaveBatch(ctx context.Context, events []models.CommandEvent) error
	List(ctx context.Context, f EventFilter) ([]models.CommandEvent, error)
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
	Operators OperatorRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
		Operators: NewOperatorSQLite(db),
	}
}
