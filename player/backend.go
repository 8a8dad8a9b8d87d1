// Package player drives a team's device: it joins races, keeps the session
// token, and reacts to review decisions pushed by the server.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Dosada05/ralli/geofence"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/realtime"
)

var (
	// ErrUnauthorized means the server no longer accepts the session token.
	ErrUnauthorized = errors.New("session rejected by server")
	ErrNotFound     = errors.New("not found")
)

// APIError is a non-2xx answer of the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Backend is the server as seen by a team device.
type Backend interface {
	Join(ctx context.Context, code, teamName string) (*models.JoinResult, error)
	View(ctx context.Context, raceID, token string) (*models.GameView, error)
	Verify(ctx context.Context, raceID, token string, fix geofence.Fix) (*models.VerifyResult, error)
	RequestHint(ctx context.Context, raceID, token string) (*models.HintResult, error)
	Submit(ctx context.Context, raceID, token string, photo io.Reader) (*models.Progress, error)
	Teams(ctx context.Context, raceID, token string) ([]models.RosterEntry, error)
	// Subscribe streams changes of one race until the subscription is closed.
	Subscribe(ctx context.Context, raceID string, filter realtime.Filter) (Subscription, error)
}

type Subscription interface {
	// Changes is closed when the stream ends.
	Changes() <-chan realtime.Change
	Close() error
}
