package models

import "time"

// RaceStatus mirrors the CHECK constraint on races.status.
type RaceStatus string

const (
	RaceStatusDraft  RaceStatus = "draft"
	RaceStatusLobby  RaceStatus = "lobby"
	RaceStatusActive RaceStatus = "active"
)

func (s RaceStatus) Valid() bool {
	switch s {
	case RaceStatusDraft, RaceStatusLobby, RaceStatusActive:
		return true
	}
	return false
}

// rank orders statuses along the only allowed direction draft -> lobby -> active.
func (s RaceStatus) rank() int {
	switch s {
	case RaceStatusDraft:
		return 0
	case RaceStatusLobby:
		return 1
	case RaceStatusActive:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether the race may move from s to next.
// Statuses never move backwards.
func (s RaceStatus) CanTransitionTo(next RaceStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() >= s.rank()
}

type Race struct {
	ID          string     `json:"id" db:"id"`
	OrganizerID string     `json:"organizer_id" db:"organizer_id"`
	Name        string     `json:"name" db:"name"`
	Description *string    `json:"description,omitempty" db:"description"`
	Status      RaceStatus `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`

	ShortCode string     `json:"short_code" db:"-"`
	Waypoints []Waypoint `json:"waypoints,omitempty" db:"-"`
}
