package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"drone_commander/internal/models"
)

func fullTelemetryReplies() map[string]string {
	return map[string]string{
		"battery?":      "87",
		"temp?":         "60~63C",
		"baro?":         "12.5",
		"speed?":        "10.0",
		"height?":       "80dm",
		"time?":         "31s",
		"attitude?":     "pitch:1;roll:-2;yaw:90;",
		"acceleration?": "agx:0.50;agy:-1.00;agz:998.00;",
	}
}

func TestTelemetryPoller_Poll_MergesAllReadings(t *testing.T) {
	t.Parallel()

	repo := &memStateRepo{}
	cmd := newScriptedCommander(fullTelemetryReplies())
	p := NewTelemetryPoller(cmd, repo, nil)

	before := time.Now().UTC()
	st, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	want := models.DroneState{
		ID:             1,
		BatteryPct:     87,
		TemperatureC:   61,
		BarometerM:     12.5,
		SpeedCMS:       10,
		HeightCM:       80,
		FlightTimeS:    31,
		Attitude:       [3]int{1, -2, 90},
		Acceleration:   [3]float64{0.5, -1, 998},
		CommandsIssued: len(telemetryQueries),
	}
	got := st
	got.UpdatedAt = time.Time{}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("state mismatch:\n got  %+v\n want %+v", got, want)
	}
	if st.UpdatedAt.Before(before) || st.UpdatedAt.Location() != time.UTC {
		t.Fatalf("UpdatedAt not refreshed in UTC: %v", st.UpdatedAt)
	}
	if repo.saveCount() != 1 {
		t.Fatalf("expected one save, got %d", repo.saveCount())
	}
	if sent := cmd.sentCommands(); !reflect.DeepEqual(sent, telemetryQueries) {
		t.Fatalf("queries sent %v, want %v", sent, telemetryQueries)
	}
}

func TestTelemetryPoller_Poll_FailuresKeepPreviousValues(t *testing.T) {
	t.Parallel()

	repo := &memStateRepo{state: models.DroneState{ID: 1, HeightCM: 50, TemperatureC: 40, CommandsIssued: 3}}
	cmd := newScriptedCommander(map[string]string{
		"battery?": "15",
		"temp?":    "hot",
	})
	cmd.sendErr["baro?"] = errLinkDown

	st, err := NewTelemetryPoller(cmd, repo, nil).Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if st.BatteryPct != 15 {
		t.Fatalf("battery not applied: %d", st.BatteryPct)
	}
	if st.HeightCM != 50 || st.TemperatureC != 40 {
		t.Fatalf("previous values lost: %+v", st)
	}
	if st.CommandsIssued != 3+len(telemetryQueries) {
		t.Fatalf("commands issued: got %d", st.CommandsIssued)
	}
	wantCodes := []string{CodeDecodeFailed, CodeSendFailed, CodeQueryTimeout, CodeLowBattery}
	if !reflect.DeepEqual(st.ErrorCodes, wantCodes) {
		t.Fatalf("error codes: got %v, want %v", st.ErrorCodes, wantCodes)
	}
}

func TestTelemetryPoller_Poll_RepoErrors(t *testing.T) {
	t.Parallel()

	cmd := newScriptedCommander(fullTelemetryReplies())

	loadFail := &memStateRepo{loadErr: errors.New("db down")}
	if _, err := NewTelemetryPoller(cmd, loadFail, nil).Poll(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if len(cmd.sentCommands()) != 0 {
		t.Fatalf("no query should be sent when the state cannot be loaded")
	}

	saveFail := &memStateRepo{saveErr: errors.New("disk full")}
	if _, err := NewTelemetryPoller(cmd, saveFail, nil).Poll(context.Background()); err == nil {
		t.Fatalf("expected save error")
	}
}

func TestTelemetryPoller_Poll_StopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := &memStateRepo{}
	if _, err := NewTelemetryPoller(newScriptedCommander(nil), repo, nil).Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if repo.saveCount() != 0 {
		t.Fatalf("nothing should be saved")
	}
}

func TestTelemetryPoller_Run_TicksUntilCanceled(t *testing.T) {
	t.Parallel()

	repo := &memStateRepo{}
	p := NewTelemetryPoller(newScriptedCommander(fullTelemetryReplies()), repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for repo.saveCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("poller did not tick, saves=%d", repo.saveCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
