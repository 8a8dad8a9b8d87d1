package models

import "time"

const (
	DefaultRadiusMeters = 50.0
	DefaultPointsValue  = 100
)

type Waypoint struct {
	ID              string    `json:"id" db:"id"`
	RaceID          string    `json:"race_id" db:"race_id"`
	Name            string    `json:"name" db:"name"`
	Riddle          string    `json:"riddle" db:"riddle"`
	TaskInstruction string    `json:"task_instruction" db:"task_instruction"`
	Lat             float64   `json:"lat" db:"lat"`
	Lng             float64   `json:"lng" db:"lng"`
	RadiusMeters    float64   `json:"radius_meters" db:"radius_meters"`
	PointsValue     int       `json:"points_value" db:"points_value"`
	OrderIndex      int       `json:"order_index" db:"order_index"`
	Hint            *string   `json:"hint,omitempty" db:"hint"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

func (w *Waypoint) HasHint() bool {
	return w.Hint != nil && *w.Hint != ""
}

// PlayerWaypoint is the view of a waypoint handed to teams. Coordinates are
// never included and the hint only once it has been paid for.
type PlayerWaypoint struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Riddle          string  `json:"riddle"`
	TaskInstruction string  `json:"task_instruction"`
	RadiusMeters    float64 `json:"radius_meters"`
	PointsValue     int     `json:"points_value"`
	OrderIndex      int     `json:"order_index"`
	HasHint         bool    `json:"has_hint"`
	Hint            *string `json:"hint,omitempty"`
}

func (w *Waypoint) ForPlayer(hintRevealed bool) *PlayerWaypoint {
	pw := &PlayerWaypoint{
		ID:              w.ID,
		Name:            w.Name,
		Riddle:          w.Riddle,
		TaskInstruction: w.TaskInstruction,
		RadiusMeters:    w.RadiusMeters,
		PointsValue:     w.PointsValue,
		OrderIndex:      w.OrderIndex,
		HasHint:         w.HasHint(),
	}
	if hintRevealed && pw.HasHint {
		hint := *w.Hint
		pw.Hint = &hint
	}
	return pw
}
