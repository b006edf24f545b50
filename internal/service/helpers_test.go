package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"drone_commander/internal/correlator"
	"drone_commander/internal/eventlog"
	"drone_commander/internal/models"
	"drone_commander/internal/repository"
)

// scriptedCommander resolves every command immediately against a real
// event log: a scripted reply is attached, a scripted send error fails the
// send, anything else times out.
type scriptedCommander struct {
	mu      sync.Mutex
	log     *eventlog.Log
	replies map[string]string
	sendErr map[string]error
	sent    []string
}

func newScriptedCommander(replies map[string]string) *scriptedCommander {
	return &scriptedCommander{
		log:     eventlog.New(),
		replies: replies,
		sendErr: map[string]error{},
	}
}

func (c *scriptedCommander) SendCommand(ctx context.Context, text string, _ time.Duration) (eventlog.Event, error) {
	if err := ctx.Err(); err != nil {
		return eventlog.Event{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, text)
	ev := c.log.Append(text)
	if err, ok := c.sendErr[text]; ok {
		got, _ := c.log.MarkSendFailed(ev.ID, err)
		return got, &correlator.SendError{Command: text, Err: err}
	}
	if reply, ok := c.replies[text]; ok {
		got, _ := c.log.AttachResponseTo(ev.ID, reply)
		return got, nil
	}
	got, _ := c.log.MarkTimeoutOf(ev.ID)
	return got, nil
}

func (c *scriptedCommander) Session() string         { return "test-session" }
func (c *scriptedCommander) EventLog() *eventlog.Log { return c.log }

func (c *scriptedCommander) sentCommands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type memStateRepo struct {
	mu      sync.Mutex
	state   models.DroneState
	loadErr error
	saveErr error
	saves   []models.DroneState
}

func (r *memStateRepo) Load(ctx context.Context) (models.DroneState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.loadErr
}

func (r *memStateRepo) Save(ctx context.Context, s models.DroneState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, s)
	if r.saveErr != nil {
		return r.saveErr
	}
	r.state = s
	return nil
}

func (r *memStateRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

type memEventRepo struct {
	mu        sync.Mutex
	batches   [][]models.CommandEvent
	saveErr   error
	gotFilter repository.EventFilter
	listResp  []models.CommandEvent
	listErr   error
	listCalls int
}

func (r *memEventRepo) SaveBatch(ctx context.Context, events []models.CommandEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.batches = append(r.batches, events)
	return nil
}

func (r *memEventRepo) List(ctx context.Context, f repository.EventFilter) ([]models.CommandEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	r.gotFilter = f
	return r.listResp, r.listErr
}

func (r *memEventRepo) lastBatch() []models.CommandEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil
	}
	return r.batches[len(r.batches)-1]
}

var errLinkDown = errors.New("link down")
