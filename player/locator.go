package player

import (
	"context"
	"errors"
	"time"

	"github.com/Dosada05/ralli/geofence"
)

// FixTimeout bounds how long a location request may take.
const FixTimeout = 10 * time.Second

var (
	ErrLocationTimeout = errors.New("timed out waiting for a location fix")
	// ErrPermissionDenied is returned by a Locator when the user has not
	// granted access to the position sensor.
	ErrPermissionDenied = errors.New("location permission denied")
)

// Locator is the device position sensor.
type Locator interface {
	Locate(ctx context.Context) (geofence.Fix, error)
}

// StaticLocator reports a fixed position, optionally after a delay. It backs
// the CLI, where the position is given on the command line. A fix without a
// timestamp is stamped at the moment it is reported.
type StaticLocator struct {
	Fix   geofence.Fix
	Delay time.Duration
}

func (l StaticLocator) Locate(ctx context.Context) (geofence.Fix, error) {
	if l.Delay > 0 {
		timer := time.NewTimer(l.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return geofence.Fix{}, ctx.Err()
		case <-timer.C:
		}
	}
	fix := l.Fix
	if fix.At.IsZero() {
		fix.At = time.Now()
	}
	return fix, nil
}

// locate asks l for a fix within timeout. Only the expiry of that timeout
// becomes ErrLocationTimeout; cancellation or an earlier deadline of the
// caller's context is returned as the context error.
func locate(parent context.Context, l Locator, timeout time.Duration) (geofence.Fix, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	fix, err := l.Locate(ctx)
	if err != nil {
		if pErr := parent.Err(); pErr != nil {
			return geofence.Fix{}, pErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return geofence.Fix{}, ErrLocationTimeout
		}
		return geofence.Fix{}, err
	}
	return fix, nil
}
