package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

type HintRepository interface {
	// Reveal records that the team unlocked the hint. It reports false when
	// the hint had already been revealed.
	Reveal(ctx context.Context, exec SQLExecutor, teamID, waypointID string) (bool, error)
	IsRevealed(ctx context.Context, teamID, waypointID string) (bool, error)
}

type postgresHintRepository struct {
	db *sql.DB
}

func NewPostgresHintRepository(db *sql.DB) HintRepository {
	return &postgresHintRepository{db: db}
}

func (r *postgresHintRepository) Reveal(ctx context.Context, exec SQLExecutor, teamID, waypointID string) (bool, error) {
	if exec == nil {
		exec = r.db
	}
	result, err := exec.ExecContext(ctx, `
		INSERT INTO hint_reveals (team_id, waypoint_id) VALUES ($1, $2)
		ON CONFLICT (team_id, waypoint_id) DO NOTHING`, teamID, waypointID)
	if err != nil {
		if pqErr, ok := asPQError(err); ok && pqErr.Code == pqForeignKeyViolation {
			return false, ErrTeamNotFound
		}
		return false, fmt.Errorf("failed to reveal hint: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return n == 1, nil
}

func (r *postgresHintRepository) IsRevealed(ctx context.Context, teamID, waypointID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM hint_reveals WHERE team_id = $1 AND waypoint_id = $2)`,
		teamID, waypointID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check hint reveal: %w", err)
	}
	return exists, nil
}
