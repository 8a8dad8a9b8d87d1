package models

import "time"

type Team struct {
	ID                string    `json:"id" db:"id"`
	RaceID            string    `json:"race_id" db:"race_id"`
	Name              string    `json:"name" db:"name"`
	Score             int       `json:"score" db:"score"`
	CurrentStepIndex  int       `json:"current_step_index" db:"current_step_index"`
	VerifiedStepIndex *int      `json:"verified_step_index,omitempty" db:"verified_step_index"`
	SessionToken      string    `json:"-" db:"session_token"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// LocationVerified reports whether the team confirmed its position at the
// waypoint it is currently working on.
func (t *Team) LocationVerified() bool {
	return t.VerifiedStepIndex != nil && *t.VerifiedStepIndex == t.CurrentStepIndex
}

// RosterEntry is what a team sees about the other teams in its race.
type RosterEntry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
	Self     bool      `json:"self,omitempty"`
}

type HintReveal struct {
	TeamID     string    `json:"team_id" db:"team_id"`
	WaypointID string    `json:"waypoint_id" db:"waypoint_id"`
	RevealedAt time.Time `json:"revealed_at" db:"revealed_at"`
}
