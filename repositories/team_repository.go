package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/ralli/models"
)

var (
	ErrTeamNotFound      = errors.New("team not found")
	ErrTeamTokenConflict = errors.New("team session token already in use")
	ErrTeamRaceInvalid   = errors.New("invalid race reference for team")
	// ErrTeamStepMismatch is returned by guarded updates when the team is no
	// longer at the step the caller read.
	ErrTeamStepMismatch = errors.New("team is no longer at the expected step")
)

type TeamRepository interface {
	Create(ctx context.Context, team *models.Team) error
	GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.Team, error)
	GetBySession(ctx context.Context, raceID, token string) (*models.Team, error)
	ListByRace(ctx context.Context, raceID string) ([]models.Team, error)
	// Leaderboard lists teams by score desc, step desc, then earliest update.
	Leaderboard(ctx context.Context, raceID string) ([]models.Team, error)
	SetVerifiedStep(ctx context.Context, teamID string, step int) (*models.Team, error)
	// Advance moves the team one step forward and adds points, only if it is
	// still at expectedStep.
	Advance(ctx context.Context, exec SQLExecutor, teamID string, expectedStep, points int) (*models.Team, error)
	// ForceSkip moves the team past expectedStep without awarding points.
	ForceSkip(ctx context.Context, exec SQLExecutor, teamID string, expectedStep int) (*models.Team, error)
	// DeductHint lowers the score by cost without going below zero.
	DeductHint(ctx context.Context, exec SQLExecutor, teamID string, cost int) (*models.Team, error)
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const teamColumns = `id, race_id, name, score, current_step_index, verified_step_index, session_token, created_at, updated_at`

func scanTeam(s rowScanner, t *models.Team) error {
	return s.Scan(&t.ID, &t.RaceID, &t.Name, &t.Score, &t.CurrentStepIndex, &t.VerifiedStepIndex,
		&t.SessionToken, &t.CreatedAt, &t.UpdatedAt)
}

func (r *postgresTeamRepository) Create(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (id, race_id, name, session_token)
		VALUES ($1, $2, $3, $4)
		RETURNING score, current_step_index, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, team.ID, team.RaceID, team.Name, team.SessionToken).
		Scan(&team.Score, &team.CurrentStepIndex, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		if pqErr, ok := asPQError(err); ok {
			switch pqErr.Code {
			case pqUniqueViolation:
				return ErrTeamTokenConflict
			case pqForeignKeyViolation:
				return ErrTeamRaceInvalid
			}
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.Team, error) {
	return r.findOne(ctx, r.getExecutor(exec), `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)
}

func (r *postgresTeamRepository) GetBySession(ctx context.Context, raceID, token string) (*models.Team, error) {
	return r.findOne(ctx, r.db, `SELECT `+teamColumns+` FROM teams WHERE race_id = $1 AND session_token = $2`, raceID, token)
}

func (r *postgresTeamRepository) findOne(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) (*models.Team, error) {
	t := &models.Team{}
	if err := scanTeam(exec.QueryRowContext(ctx, query, args...), t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to find team: %w", err)
	}
	return t, nil
}

func (r *postgresTeamRepository) ListByRace(ctx context.Context, raceID string) ([]models.Team, error) {
	return r.list(ctx, `SELECT `+teamColumns+` FROM teams WHERE race_id = $1 ORDER BY created_at`, raceID)
}

func (r *postgresTeamRepository) Leaderboard(ctx context.Context, raceID string) ([]models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE race_id = $1
		ORDER BY score DESC, current_step_index DESC, updated_at ASC`
	return r.list(ctx, query, raceID)
}

func (r *postgresTeamRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Team, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]models.Team, 0)
	for rows.Next() {
		var t models.Team
		if err := scanTeam(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (r *postgresTeamRepository) SetVerifiedStep(ctx context.Context, teamID string, step int) (*models.Team, error) {
	query := `
		UPDATE teams SET verified_step_index = $1, updated_at = now()
		WHERE id = $2 AND current_step_index = $1
		RETURNING ` + teamColumns
	return r.guardedUpdate(ctx, r.db, teamID, query, step, teamID)
}

func (r *postgresTeamRepository) Advance(ctx context.Context, exec SQLExecutor, teamID string, expectedStep, points int) (*models.Team, error) {
	query := `
		UPDATE teams SET
			score = score + $1,
			current_step_index = current_step_index + 1,
			verified_step_index = NULL,
			updated_at = now()
		WHERE id = $2 AND current_step_index = $3
		RETURNING ` + teamColumns
	return r.guardedUpdate(ctx, r.getExecutor(exec), teamID, query, points, teamID, expectedStep)
}

func (r *postgresTeamRepository) ForceSkip(ctx context.Context, exec SQLExecutor, teamID string, expectedStep int) (*models.Team, error) {
	return r.Advance(ctx, exec, teamID, expectedStep, 0)
}

func (r *postgresTeamRepository) DeductHint(ctx context.Context, exec SQLExecutor, teamID string, cost int) (*models.Team, error) {
	query := `
		UPDATE teams SET score = GREATEST(score - $1, 0), updated_at = now()
		WHERE id = $2
		RETURNING ` + teamColumns

	t := &models.Team{}
	if err := scanTeam(r.getExecutor(exec).QueryRowContext(ctx, query, cost, teamID), t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to charge hint: %w", err)
	}
	return t, nil
}

// guardedUpdate runs an UPDATE ... RETURNING whose WHERE clause checks the
// step index. No row means either the team is gone or it moved on.
func (r *postgresTeamRepository) guardedUpdate(ctx context.Context, exec SQLExecutor, teamID, query string, args ...interface{}) (*models.Team, error) {
	t := &models.Team{}
	err := scanTeam(exec.QueryRowContext(ctx, query, args...), t)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update team %s: %w", teamID, err)
	}
	if _, getErr := r.findOne(ctx, exec, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, teamID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrTeamStepMismatch
}
