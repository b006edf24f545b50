package models

import "time"

// DroneState is the latest telemetry snapshot assembled from query replies.
type DroneState struct {
	ID             int        `json:"id"`
	BatteryPct     int        `json:"battery_pct"`
	TemperatureC   int        `json:"temperature_c"` // mean of the reported range
	BarometerM     float64    `json:"barometer_m"`
	SpeedCMS       int        `json:"speed_cm_s"`
	HeightCM       int        `json:"height_cm"`
	FlightTimeS    int        `json:"flight_time_s"`
	Attitude       [3]int     `json:"attitude"`     // pitch, roll, yaw
	Acceleration   [3]float64 `json:"acceleration"` // x, y, z
	ErrorCodes     []string   `json:"error_codes,omitempty"`
	CommandsIssued int        `json:"commands_issued"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Stale          bool       `json:"stale"` // computed on read, not stored
}
