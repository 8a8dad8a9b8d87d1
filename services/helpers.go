package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/realtime"
	"github.com/Dosada05/ralli/repositories"
	"github.com/Dosada05/ralli/shortcode"
	"github.com/Dosada05/ralli/storage"
	"github.com/google/uuid"
)

// ChangePublisher is the write side of the realtime bus.
type ChangePublisher interface {
	Publish(ctx context.Context, c realtime.Change) error
}

// publishChange announces a committed write. Failures are logged only: the
// row is already stored and clients resync on their next fetch.
func publishChange(ctx context.Context, pub ChangePublisher, logger *slog.Logger, table string, event realtime.EventType, raceID string, record interface{}, columns map[string]string) {
	if pub == nil {
		return
	}
	c, err := realtime.NewChange(table, event, raceID, record, columns)
	if err != nil {
		logger.WarnContext(ctx, "failed to build change", slog.String("table", table), slog.Any("error", err))
		return
	}
	if err := pub.Publish(context.WithoutCancel(ctx), c); err != nil {
		logger.WarnContext(ctx, "failed to publish change", slog.String("table", table), slog.String("race_id", raceID), slog.Any("error", err))
	}
}

func publishTeam(ctx context.Context, pub ChangePublisher, logger *slog.Logger, event realtime.EventType, team *models.Team) {
	publishChange(ctx, pub, logger, realtime.TableTeams, event, team.RaceID, team, map[string]string{
		"id":      team.ID,
		"race_id": team.RaceID,
	})
}

func publishProgress(ctx context.Context, pub ChangePublisher, logger *slog.Logger, event realtime.EventType, raceID string, p *models.Progress) {
	publishChange(ctx, pub, logger, realtime.TableProgress, event, raceID, p, map[string]string{
		"id":          p.ID,
		"team_id":     p.TeamID,
		"waypoint_id": p.WaypointID,
		"status":      string(p.Status),
	})
}

func populateRaceShortCode(race *models.Race) {
	if id, err := uuid.Parse(race.ID); err == nil {
		race.ShortCode = shortcode.Of(id)
	}
}

func populateProofURL(p *models.Progress, uploader storage.FileUploader) {
	if p == nil || p.ProofPath == nil || uploader == nil {
		return
	}
	if url := uploader.GetPublicURL(*p.ProofPath); url != "" {
		p.ProofURL = &url
	}
}

// loadOwnedRace fetches a race and checks that organizerID runs it.
func loadOwnedRace(ctx context.Context, races repositories.RaceRepository, organizerID, raceID string) (*models.Race, error) {
	race, err := races.GetByID(ctx, raceID)
	if err != nil {
		if errors.Is(err, repositories.ErrRaceNotFound) {
			return nil, ErrRaceNotFound
		}
		return nil, err
	}
	if race.OrganizerID != organizerID {
		return nil, ErrForbiddenOperation
	}
	populateRaceShortCode(race)
	return race, nil
}

func mapTeamErr(err error) error {
	switch {
	case errors.Is(err, repositories.ErrTeamNotFound):
		return ErrTeamNotFound
	case errors.Is(err, repositories.ErrTeamStepMismatch):
		return ErrStaleTeamState
	}
	return err
}

type clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
