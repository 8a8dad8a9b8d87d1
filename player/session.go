package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/realtime"
)

var (
	// ErrNotJoined means the device holds no usable token for the race and
	// has to join again.
	ErrNotJoined    = errors.New("not joined to this race")
	ErrNoRace       = errors.New("no race loaded")
	ErrStreamClosed = errors.New("change stream closed")
)

// Session is the state of one team device in one race.
type Session struct {
	backend       Backend
	tokens        TokenStore
	locator       Locator
	logger        *slog.Logger
	locateTimeout time.Duration

	mu     sync.Mutex
	raceID string
	token  string
	view   *models.GameView
}

func NewSession(backend Backend, tokens TokenStore, locator Locator, logger *slog.Logger) *Session {
	return &Session{
		backend:       backend,
		tokens:        tokens,
		locator:       locator,
		logger:        logger,
		locateTimeout: FixTimeout,
	}
}

// Join enters a race by code and remembers the issued token.
func (s *Session) Join(ctx context.Context, code, teamName string) (*models.GameView, error) {
	res, err := s.backend.Join(ctx, strings.TrimSpace(code), strings.TrimSpace(teamName))
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Set(res.RaceID, res.SessionToken); err != nil {
		return nil, fmt.Errorf("store session token: %w", err)
	}

	s.mu.Lock()
	s.raceID, s.token, s.view = res.RaceID, res.SessionToken, nil
	s.mu.Unlock()

	s.logger.Info("joined race", slog.String("race_id", res.RaceID), slog.String("team", res.Team.Name))
	return s.Refresh(ctx)
}

// Load resumes a race with the stored token.
func (s *Session) Load(ctx context.Context, raceID string) (*models.GameView, error) {
	token, ok, err := s.tokens.Get(raceID)
	if err != nil {
		return nil, fmt.Errorf("read session token: %w", err)
	}
	if !ok || token == "" {
		return nil, ErrNotJoined
	}

	s.mu.Lock()
	s.raceID, s.token, s.view = raceID, token, nil
	s.mu.Unlock()

	return s.Refresh(ctx)
}

func (s *Session) credentials() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raceID == "" {
		return "", "", ErrNoRace
	}
	return s.raceID, s.token, nil
}

// Refresh fetches the current view. The local view is only replaced on
// success; a rejected token is forgotten.
func (s *Session) Refresh(ctx context.Context) (*models.GameView, error) {
	raceID, token, err := s.credentials()
	if err != nil {
		return nil, err
	}

	view, err := s.backend.View(ctx, raceID, token)
	if err != nil {
		return nil, s.handleError(raceID, err)
	}

	s.mu.Lock()
	s.view = view
	s.mu.Unlock()

	if view.Finished() {
		if err := s.tokens.Delete(raceID); err != nil {
			s.logger.Warn("failed to clear token of finished race", slog.String("race_id", raceID), slog.Any("error", err))
		}
	}
	return view, nil
}

func (s *Session) handleError(raceID string, err error) error {
	if !errors.Is(err, ErrUnauthorized) && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.logger.Warn("session no longer valid", slog.String("race_id", raceID), slog.Any("error", err))
	if delErr := s.tokens.Delete(raceID); delErr != nil {
		s.logger.Warn("failed to clear token", slog.String("race_id", raceID), slog.Any("error", delErr))
	}

	s.mu.Lock()
	if s.raceID == raceID {
		s.raceID, s.token, s.view = "", "", nil
	}
	s.mu.Unlock()
	return fmt.Errorf("%w: %w", ErrNotJoined, err)
}

// View returns the last successfully fetched view.
func (s *Session) View() *models.GameView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Verify reads the device position and checks it against the current
// waypoint.
func (s *Session) Verify(ctx context.Context) (*models.VerifyResult, error) {
	raceID, token, err := s.credentials()
	if err != nil {
		return nil, err
	}

	fix, err := locate(ctx, s.locator, s.locateTimeout)
	if err != nil {
		return nil, err
	}

	res, err := s.backend.Verify(ctx, raceID, token, fix)
	if err != nil {
		return nil, s.handleError(raceID, err)
	}
	if _, err := s.Refresh(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Session) RequestHint(ctx context.Context) (*models.HintResult, error) {
	raceID, token, err := s.credentials()
	if err != nil {
		return nil, err
	}

	res, err := s.backend.RequestHint(ctx, raceID, token)
	if err != nil {
		return nil, s.handleError(raceID, err)
	}
	if _, err := s.Refresh(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Session) Submit(ctx context.Context, photo io.Reader) (*models.Progress, error) {
	raceID, token, err := s.credentials()
	if err != nil {
		return nil, err
	}

	p, err := s.backend.Submit(ctx, raceID, token, photo)
	if err != nil {
		return nil, s.handleError(raceID, err)
	}
	if _, err := s.Refresh(ctx); err != nil {
		return p, err
	}
	return p, nil
}

// Teams lists the teams that joined the race so far.
func (s *Session) Teams(ctx context.Context) ([]models.RosterEntry, error) {
	raceID, token, err := s.credentials()
	if err != nil {
		return nil, err
	}
	teams, err := s.backend.Teams(ctx, raceID, token)
	if err != nil {
		return nil, s.handleError(raceID, err)
	}
	return teams, nil
}

// Watch refreshes the view whenever the race, the team or one of its
// submissions changes, and hands every new view to onView. It returns nil
// once the team finished.
func (s *Session) Watch(ctx context.Context, onView func(*models.GameView)) error {
	raceID, _, err := s.credentials()
	if err != nil {
		return err
	}

	sub, err := s.backend.Subscribe(ctx, raceID, realtime.Filter{})
	if err != nil {
		return fmt.Errorf("subscribe to race %s: %w", raceID, err)
	}
	defer sub.Close()

	view, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	onView(view)
	if view.Finished() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-sub.Changes():
			if !ok {
				return ErrStreamClosed
			}
			if !relevant(c, view.Team.ID) {
				continue
			}
			next, err := s.Refresh(ctx)
			if err != nil {
				return err
			}
			view = next
			onView(view)
			if view.Finished() {
				return nil
			}
		}
	}
}

func relevant(c realtime.Change, teamID string) bool {
	switch c.Table {
	case realtime.TableRaces:
		return true
	case realtime.TableTeams:
		return c.Columns["id"] == teamID
	case realtime.TableProgress:
		return c.Columns["team_id"] == teamID
	}
	return false
}
