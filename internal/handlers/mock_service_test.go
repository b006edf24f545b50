package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"drone_commander/internal/eventlog"
	"drone_commander/internal/models"
	"drone_commander/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID  int
	signUpErr error
	token     service.Token
	signInErr error
	parseID   int
	parseErr  error
	operator  models.Operator
	opErr     error

	lastUsername   string
	lastPassword   string
	lastParseToken string
	lastOperatorID int
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastUsername, m.lastPassword = username, password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) SignIn(ctx context.Context, username, password string) (service.Token, error) {
	m.lastUsername, m.lastPassword = username, password
	return m.token, m.signInErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}
func (m *mockAuth) Operator(ctx context.Context, id int) (models.Operator, error) {
	m.lastOperatorID = id
	return m.operator, m.opErr
}

// mockDrone records the operation called and returns a canned event.
type mockDrone struct {
	mu    sync.Mutex
	ev    eventlog.Event
	err   error
	calls []string

	lastRaw    string
	lastMove   service.MoveParams
	lastRotate service.RotateParams
	lastSpeed  int
	lastQuery  string
}

func (m *mockDrone) record(op string) (eventlog.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	return m.ev, m.err
}

func (m *mockDrone) Raw(ctx context.Context, text string) (eventlog.Event, error) {
	m.lastRaw = text
	return m.record("raw")
}
func (m *mockDrone) Command(ctx context.Context) (eventlog.Event, error) { return m.record("command") }
func (m *mockDrone) Takeoff(ctx context.Context) (eventlog.Event, error) { return m.record("takeoff") }
func (m *mockDrone) Land(ctx context.Context) (eventlog.Event, error)    { return m.record("land") }
func (m *mockDrone) Emergency(ctx context.Context) (eventlog.Event, error) {
	return m.record("emergency")
}
func (m *mockDrone) StreamOn(ctx context.Context) (eventlog.Event, error) {
	return m.record("streamon")
}
func (m *mockDrone) StreamOff(ctx context.Context) (eventlog.Event, error) {
	return m.record("streamoff")
}
func (m *mockDrone) Move(ctx context.Context, p service.MoveParams) (eventlog.Event, error) {
	m.lastMove = p
	return m.record("move")
}
func (m *mockDrone) Rotate(ctx context.Context, p service.RotateParams) (eventlog.Event, error) {
	m.lastRotate = p
	return m.record("rotate")
}
func (m *mockDrone) SetSpeed(ctx context.Context, cms int) (eventlog.Event, error) {
	m.lastSpeed = cms
	return m.record("speed")
}
func (m *mockDrone) Query(ctx context.Context, name string) (eventlog.Event, error) {
	m.lastQuery = name
	return m.record("query")
}

type mockMonitoring struct {
	mu    sync.Mutex
	state models.DroneState
	err   error
}

func (m *mockMonitoring) GetState(ctx context.Context) (models.DroneState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.err
}

func (m *mockMonitoring) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type mockEventLog struct {
	mu         sync.Mutex
	resp       []models.CommandEvent
	live       []models.CommandEvent
	export     string
	err        error
	flushN     int
	flushErr   error
	lastFilter service.LogFilter
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.CommandEvent, error) {
	m.lastFilter = f
	return m.resp, m.err
}
func (m *mockEventLog) Live() []models.CommandEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CommandEvent(nil), m.live...)
}
func (m *mockEventLog) Export() string { return m.export }
func (m *mockEventLog) ExportPersisted(ctx context.Context, f service.LogFilter) (string, error) {
	m.lastFilter = f
	return m.export, m.err
}
func (m *mockEventLog) ExportFile(path string) error { return nil }
func (m *mockEventLog) Flush(ctx context.Context) (int, error) {
	return m.flushN, m.flushErr
}
func (m *mockEventLog) RunFlusher(ctx context.Context, every time.Duration) {}

func (m *mockEventLog) appendLive(ev models.CommandEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = append(m.live, ev)
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service, opts ...Option) *gin.Engine {
	h := NewHandler(s, nil, opts...)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
