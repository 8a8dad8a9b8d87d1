package models

import "time"

type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressApproved ProgressStatus = "approved"
	ProgressRejected ProgressStatus = "rejected"
)

func (s ProgressStatus) Valid() bool {
	switch s {
	case ProgressPending, ProgressApproved, ProgressRejected:
		return true
	}
	return false
}

// Active statuses block another submission for the same team and waypoint.
func (s ProgressStatus) Active() bool {
	return s == ProgressPending || s == ProgressApproved
}

const (
	DefaultRejectionReason = "Task requirements not met."
	SkipRejectionReason    = "Skipped by organizer"
)

// Progress is a photo submission for a waypoint.
type Progress struct {
	ID              string         `json:"id" db:"id"`
	TeamID          string         `json:"team_id" db:"team_id"`
	WaypointID      string         `json:"waypoint_id" db:"waypoint_id"`
	Status          ProgressStatus `json:"status" db:"status"`
	ProofPath       *string        `json:"-" db:"proof_path"`
	SubmittedAt     time.Time      `json:"submitted_at" db:"submitted_at"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty" db:"reviewed_at"`
	RejectionReason *string        `json:"rejection_reason,omitempty" db:"rejection_reason"`

	ProofURL     *string `json:"proof_url,omitempty" db:"-"`
	TeamName     string  `json:"team_name,omitempty" db:"-"`
	WaypointName string  `json:"waypoint_name,omitempty" db:"-"`
}
