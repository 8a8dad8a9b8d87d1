package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound = errors.New("requested resource not found")

	// validation and business rules
	ErrValidationFailed        = errors.New("validation failed")
	ErrPasswordTooShort        = errors.New("password is too short")
	ErrInvalidRaceStatus       = errors.New("invalid race status provided")
	ErrInvalidStatusTransition = errors.New("race status cannot move backwards")
	ErrInvalidRaceCode         = errors.New("race code must be 8 hexadecimal characters or a race id")
	ErrAmbiguousRaceCode       = errors.New("race code matches more than one race, use the full id")
	ErrRaceNotJoinable         = errors.New("race is not open for teams yet")
	ErrRaceNotActive           = errors.New("race has not started")
	ErrRaceFinished            = errors.New("team has finished the race")
	ErrInvalidLocation         = errors.New("location fix is out of range")
	ErrLocationNotVerified     = errors.New("verify your location at the waypoint first")
	ErrActionNotAllowed        = errors.New("action is not allowed in the current state")
	ErrNoHint                  = errors.New("this waypoint has no hint")
	ErrInvalidProof            = errors.New("proof must be a JPEG, PNG or GIF image")
	ErrProofTooLarge           = errors.New("proof image has too many pixels")
	ErrInvalidReviewDecision   = errors.New("decision must be approve or reject")

	// conflicts
	ErrEmailConflict    = errors.New("email address is already in use")
	ErrAlreadyReviewed  = errors.New("submission has already been reviewed")
	ErrStaleTeamState   = errors.New("team progress changed meanwhile, reload and retry")
	ErrWaypointConflict = errors.New("waypoint order index is used twice")

	// authentication and authorization
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidSession       = errors.New("team session is not valid for this race")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")

	ErrOrganizerNotFound  = errors.New("organizer not found")
	ErrRaceNotFound       = errors.New("race not found")
	ErrWaypointNotFound   = errors.New("waypoint not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrSubmissionNotFound = errors.New("submission not found")
)

// ValidationErrors maps input fields to problems with them.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidationFailed
}

func (v ValidationErrors) add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

func (v ValidationErrors) err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
