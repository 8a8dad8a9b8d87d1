// Package gamestate holds the per-waypoint progression of a team as one
// explicit state with a single transition table.
package gamestate

import (
	"errors"
	"fmt"
)

type State string

const (
	Locked        State = "locked"
	Unverified    State = "unverified"
	AwaitingProof State = "awaiting_proof"
	PendingReview State = "pending_review"
	Approved      State = "approved"
	Rejected      State = "rejected"
	Finished      State = "finished"
)

type Event string

const (
	EventUnlocked           Event = "unlocked"
	EventLocationVerified   Event = "location_verified"
	EventProofSubmitted     Event = "proof_submitted"
	EventSubmissionApproved Event = "submission_approved"
	EventSubmissionRejected Event = "submission_rejected"
	EventAdvanced           Event = "advanced"
	EventRaceCompleted      Event = "race_completed"
)

// Submission statuses as stored on progress rows.
const (
	SubmissionNone     = ""
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

var ErrInvalidTransition = errors.New("invalid progress transition")

var transitions = map[State]map[Event]State{
	Locked: {
		EventUnlocked: Unverified,
	},
	Unverified: {
		EventLocationVerified: AwaitingProof,
	},
	AwaitingProof: {
		// a second successful check is harmless
		EventLocationVerified: AwaitingProof,
		EventProofSubmitted:   PendingReview,
	},
	PendingReview: {
		EventSubmissionApproved: Approved,
		EventSubmissionRejected: Rejected,
	},
	Rejected: {
		// rejected falls back to awaiting proof, so a new photo is accepted
		EventLocationVerified: AwaitingProof,
		EventProofSubmitted:   PendingReview,
	},
	Approved: {
		EventAdvanced:      Unverified,
		EventRaceCompleted: Finished,
	},
	Finished: {},
}

// Transition applies e to s.
func Transition(s State, e Event) (State, error) {
	next, ok := transitions[s][e]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
	}
	return next, nil
}

func (s State) Terminal() bool {
	return s == Finished
}

// CanSubmit reports whether a photo may be submitted in state s.
func (s State) CanSubmit() bool {
	return s == AwaitingProof || s == Rejected
}

// CanVerify reports whether a location check makes sense in state s.
func (s State) CanVerify() bool {
	return s == Unverified || s == AwaitingProof || s == Rejected
}

// CanRequestHint reports whether the team is still working on the waypoint.
func (s State) CanRequestHint() bool {
	switch s {
	case Unverified, AwaitingProof, PendingReview, Rejected:
		return true
	}
	return false
}

// Snapshot is the persisted facts the state is rebuilt from.
type Snapshot struct {
	// StepIndex is the team's current step index.
	StepIndex int
	// WaypointOrder is the order index of the waypoint being looked at.
	WaypointOrder int
	// HasWaypoint is false when no waypoint exists at StepIndex.
	HasWaypoint bool
	// Verified is true when the location was confirmed at StepIndex.
	Verified bool
	// Submission is the status of the latest submission for the waypoint.
	Submission string
}

// Derive rebuilds the state of a waypoint for a team.
func Derive(s Snapshot) State {
	if !s.HasWaypoint {
		return Finished
	}
	switch {
	case s.WaypointOrder > s.StepIndex:
		return Locked
	case s.WaypointOrder < s.StepIndex:
		return Approved
	}

	switch s.Submission {
	case SubmissionPending:
		return PendingReview
	case SubmissionApproved:
		// approved but the team row has not moved yet
		return Approved
	case SubmissionRejected:
		return Rejected
	}
	if s.Verified {
		return AwaitingProof
	}
	return Unverified
}
