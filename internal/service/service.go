package service

import (
	"context"
	"time"

	"drone_commander/internal/eventlog"
	"drone_commander/internal/logger"
	"drone_commander/internal/models"
	"drone_commander/internal/repository"
)

// Authorization manages operator accounts and the bearer tokens that
// guard the API.
type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	SignIn(ctx context.Context, username, password string) (Token, error)
	ParseToken(accessToken string) (int, error)
	Operator(ctx context.Context, id int) (models.Operator, error)
}

// Drone exposes flight commands. Every call returns the logged event, also
// on failure, so callers can report what the drone answered.
type Drone interface {
	Raw(ctx context.Context, text string) (eventlog.Event, error)
	Command(ctx context.Context) (eventlog.Event, error)
	Takeoff(ctx context.Context) (eventlog.Event, error)
	Land(ctx context.Context) (eventlog.Event, error)
	Emergency(ctx context.Context) (eventlog.Event, error)
	StreamOn(ctx context.Context) (eventlog.Event, error)
	StreamOff(ctx context.Context) (eventlog.Event, error)
	Move(ctx context.Context, p MoveParams) (eventlog.Event, error)
	Rotate(ctx context.Context, p RotateParams) (eventlog.Event, error)
	SetSpeed(ctx context.Context, cms int) (eventlog.Event, error)
	Query(ctx context.Context, name string) (eventlog.Event, error)
}

// Monitoring exposes the latest telemetry snapshot.
type Monitoring interface {
	GetState(ctx context.Context) (models.DroneState, error)
}

// EventLog exposes the live command log and its persisted history.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.CommandEvent, error)
	Live() []models.CommandEvent
	Export() string
	ExportPersisted(ctx context.Context, f LogFilter) (string, error)
	ExportFile(path string) error
	Flush(ctx context.Context) (int, error)
	RunFlusher(ctx context.Context, every time.Duration)
}

// Telemetry runs the background loop that polls the drone.
// Stop via context cancellation.
type Telemetry interface {
	Run(ctx context.Context, tick time.Duration)
	Poll(ctx context.Context) (models.DroneState, error)
}

type Service struct {
	Drone
	Monitoring
	EventLog
	Telemetry
	Authorization
}

// Deps carries what the services need besides the repositories. A
// *correlator.Correlator serves as both Commander and Live.
type Deps struct {
	Commander  Commander
	Live       LiveLog
	Logger     *logger.Logger
	SigningKey string
	TokenTTL   time.Duration
	// StaleAfter marks telemetry older than this as stale; zero disables.
	StaleAfter time.Duration
}

func NewService(repos *repository.Repository, deps Deps) *Service {
	return &Service{
		Drone:         NewDroneService(deps.Commander),
		Monitoring:    NewMonitoringService(repos.StateRepo, deps.StaleAfter),
		EventLog:      NewEventLogService(repos.EventRepo, deps.Live, deps.Logger),
		Telemetry:     NewTelemetryPoller(deps.Commander, repos.StateRepo, deps.Logger),
		Authorization: NewAuthService(repos.Operators, deps.SigningKey, deps.TokenTTL),
	}
}
