package models

import (
	"github.com/Dosada05/ralli/gamestate"
	"github.com/Dosada05/ralli/geofence"
)

// GameView is everything a team device renders for its current step.
type GameView struct {
	RaceID          string          `json:"race_id"`
	RaceStatus      RaceStatus      `json:"race_status"`
	Team            Team            `json:"team"`
	State           gamestate.State `json:"state"`
	Waypoint        *PlayerWaypoint `json:"waypoint,omitempty"`
	TotalWaypoints  int             `json:"total_waypoints"`
	Submission      *Progress       `json:"submission,omitempty"`
	HintRevealed    bool            `json:"hint_revealed"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
}

func (v *GameView) Finished() bool {
	return v.State.Terminal()
}

type VerifyResult struct {
	geofence.Result
	Message string          `json:"message"`
	State   gamestate.State `json:"state"`
}

type HintResult struct {
	Hint  string `json:"hint"`
	Score int    `json:"score"`
	// Charged is false when the hint had already been paid for.
	Charged bool `json:"charged"`
}

type JoinResult struct {
	Team         Team       `json:"team"`
	RaceID       string     `json:"race_id"`
	RaceStatus   RaceStatus `json:"race_status"`
	SessionToken string     `json:"session_token"`
}
