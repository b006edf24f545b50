package service

import (
	"context"
	"errors"
	"time"

	"drone_commander/internal/correlator"
	"drone_commander/internal/decoder"
	"drone_commander/internal/eventlog"
	"drone_commander/internal/logger"
	"drone_commander/internal/models"
	"drone_commander/internal/repository"
)

// LowBatteryPct flags the state with LOW_BATTERY below this level.
const LowBatteryPct = 20

// Error codes recorded on DroneState.
const (
	CodeLowBattery   = "LOW_BATTERY"
	CodeQueryTimeout = "QUERY_TIMEOUT"
	CodeDecodeFailed = "DECODE_FAILED"
	CodeSendFailed   = "SEND_FAILED"
)

// telemetryQueries are polled in this order on every tick.
var telemetryQueries = []string{
	"battery?", "temp?", "baro?", "speed?", "height?", "time?", "attitude?", "acceleration?",
}

// TelemetryPoller periodically queries the drone and persists the merged
// snapshot.
type TelemetryPoller struct {
	cmd       Commander
	stateRepo repository.StateRepo
	log       *logger.Logger
}

func NewTelemetryPoller(cmd Commander, stateRepo repository.StateRepo, log *logger.Logger) *TelemetryPoller {
	if log == nil {
		log = logger.Nop()
	}
	return &TelemetryPoller{cmd: cmd, stateRepo: stateRepo, log: log}
}

// Run polls at the given interval until ctx is canceled.
func (p *TelemetryPoller) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
				p.log.Warnw("telemetry_poll_failed", "err", err)
			}
		}
	}
}

// Poll runs one round of queries and saves the resulting state. Failed
// queries keep the previous value and add an error code.
func (p *TelemetryPoller) Poll(ctx context.Context) (models.DroneState, error) {
	st, err := p.stateRepo.Load(ctx)
	if err != nil {
		return models.DroneState{}, err
	}
	if st.ID == 0 {
		st.ID = 1
	}

	var codes []string
	for _, q := range telemetryQueries {
		ev, err := p.cmd.SendCommand(ctx, q, 0)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, correlator.ErrClosed) {
				return st, err
			}
			var sendErr *correlator.SendError
			if errors.As(err, &sendErr) {
				st.CommandsIssued++
				codes = appendCode(codes, CodeSendFailed)
				continue
			}
			return st, err
		}
		st.CommandsIssued++

		switch {
		case ev.TimedOut:
			codes = appendCode(codes, CodeQueryTimeout)
		case ev.DecodeError != "":
			codes = appendCode(codes, CodeDecodeFailed)
		default:
			applyReading(&st, q, ev)
		}
	}

	if st.BatteryPct > 0 && st.BatteryPct < LowBatteryPct {
		codes = appendCode(codes, CodeLowBattery)
	}
	st.ErrorCodes = codes
	st.UpdatedAt = time.Now().UTC()

	if err := p.stateRepo.Save(ctx, st); err != nil {
		return st, err
	}
	p.log.Debugw("telemetry_saved", "battery_pct", st.BatteryPct, "height_cm", st.HeightCM, "errors", codes)
	return st, nil
}

func applyReading(st *models.DroneState, query string, ev eventlog.Event) {
	v := ev.Value
	switch query {
	case "battery?":
		st.BatteryPct = intOf(v)
	case "temp?":
		st.TemperatureC = intOf(v)
	case "baro?":
		st.BarometerM = v.Float
	case "speed?":
		st.SpeedCMS = intOf(v)
	case "height?":
		st.HeightCM = intOf(v)
	case "time?":
		st.FlightTimeS = intOf(v)
	case "attitude?":
		st.Attitude = v.Ints
	case "acceleration?":
		st.Acceleration = v.Floats
	}
}

func intOf(v decoder.Value) int {
	if v.Kind == decoder.KindFloat {
		return int(v.Float)
	}
	return v.Int
}

func appendCode(codes []string, code string) []string {
	for _, c := range codes {
		if c == code {
			return codes
		}
	}
	return append(codes, code)
}
