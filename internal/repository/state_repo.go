package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drone_commander/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

var _ StateRepo = (*StateSQLite)(nil)

const (
	droneStateRowID = 1

	insertOrUpdateStateSQL = `
		INSERT INTO drone_state (id, battery_pct, temperature_c, barometer_m, speed_cm_s, height_cm,
			flight_time_s, attitude, acceleration, errors, commands_issued, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			battery_pct=excluded.battery_pct,
			temperature_c=excluded.temperature_c,
			barometer_m=excluded.barometer_m,
			speed_cm_s=excluded.speed_cm_s,
			height_cm=excluded.height_cm,
			flight_time_s=excluded.flight_time_s,
			attitude=excluded.attitude,
			acceleration=excluded.acceleration,
			errors=excluded.errors,
			commands_issued=excluded.commands_issued,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT id, battery_pct, temperature_c, barometer_m, speed_cm_s, height_cm,
			flight_time_s, attitude, acceleration, errors, commands_issued, updated_at
		FROM drone_state WHERE id=?
	`
)

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// Save updates or inserts the drone_state row (id always 1).
func (r *StateSQLite) Save(ctx context.Context, state models.DroneState) error {
	errorsJSON, err := marshalJSON(state.ErrorCodes)
	if err != nil {
		return err
	}
	attitudeJSON, err := marshalJSON(state.Attitude)
	if err != nil {
		return err
	}
	accelJSON, err := marshalJSON(state.Acceleration)
	if err != nil {
		return err
	}

	ts := state.UpdatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	_, err = r.db.ExecContext(ctx, insertOrUpdateStateSQL,
		droneStateRowID,
		state.BatteryPct,
		state.TemperatureC,
		state.BarometerM,
		state.SpeedCMS,
		state.HeightCM,
		state.FlightTimeS,
		attitudeJSON,
		accelJSON,
		errorsJSON,
		state.CommandsIssued,
		ts,
	)
	return err
}

// Load fetches the single drone_state row. No row yields the zero value.
func (r *StateSQLite) Load(ctx context.Context) (models.DroneState, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, droneStateRowID)

	var (
		s                       models.DroneState
		attitudeJSON, accelJSON string
		errorsJSON              sql.NullString
	)
	if err := row.Scan(
		&s.ID,
		&s.BatteryPct,
		&s.TemperatureC,
		&s.BarometerM,
		&s.SpeedCMS,
		&s.HeightCM,
		&s.FlightTimeS,
		&attitudeJSON,
		&accelJSON,
		&errorsJSON,
		&s.CommandsIssued,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DroneState{}, nil
		}
		return models.DroneState{}, err
	}

	if err := unmarshalJSON(attitudeJSON, &s.Attitude); err != nil {
		return models.DroneState{}, fmt.Errorf("decode attitude: %w", err)
	}
	if err := unmarshalJSON(accelJSON, &s.Acceleration); err != nil {
		return models.DroneState{}, fmt.Errorf("decode acceleration: %w", err)
	}
	if err := unmarshalJSON(errorsJSON.String, &s.ErrorCodes); err != nil {
		return models.DroneState{}, fmt.Errorf("decode error codes: %w", err)
	}
	s.UpdatedAt = s.UpdatedAt.UTC()

	return s, nil
}
