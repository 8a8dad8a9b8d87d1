package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dosada05/ralli/models"
)

var (
	ErrProgressNotFound   = errors.New("submission not found")
	ErrProgressRefInvalid = errors.New("invalid team or waypoint reference for submission")
)

type ListProgressFilter struct {
	RaceID string
	Status *models.ProgressStatus
	// Newest orders by submitted_at descending instead of ascending.
	Newest bool
	Limit  int
}

type ProgressRepository interface {
	Create(ctx context.Context, p *models.Progress) error
	GetByID(ctx context.Context, id string) (*models.Progress, error)
	// GetForUpdate locks the row for the rest of the transaction.
	GetForUpdate(ctx context.Context, exec SQLExecutor, id string) (*models.Progress, error)
	// Latest returns the most recent submission of a team for a waypoint.
	Latest(ctx context.Context, teamID, waypointID string) (*models.Progress, error)
	// ListByRace returns submissions joined with team and waypoint names.
	ListByRace(ctx context.Context, filter ListProgressFilter) ([]models.Progress, error)
	UpdateReview(ctx context.Context, exec SQLExecutor, id string, status models.ProgressStatus, reason *string, reviewedAt time.Time) (*models.Progress, error)
	// RejectPendingForTeam rejects every pending submission of the team and
	// returns the rows it changed.
	RejectPendingForTeam(ctx context.Context, exec SQLExecutor, teamID, reason string, reviewedAt time.Time) ([]models.Progress, error)
}

type postgresProgressRepository struct {
	db *sql.DB
}

func NewPostgresProgressRepository(db *sql.DB) ProgressRepository {
	return &postgresProgressRepository{db: db}
}

func (r *postgresProgressRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const progressColumns = `id, team_id, waypoint_id, status, proof_path, submitted_at, reviewed_at, rejection_reason`

func scanProgress(s rowScanner, p *models.Progress) error {
	return s.Scan(&p.ID, &p.TeamID, &p.WaypointID, &p.Status, &p.ProofPath, &p.SubmittedAt, &p.ReviewedAt, &p.RejectionReason)
}

func (r *postgresProgressRepository) Create(ctx context.Context, p *models.Progress) error {
	query := `
		INSERT INTO progress (id, team_id, waypoint_id, status, proof_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING submitted_at`

	err := r.db.QueryRowContext(ctx, query, p.ID, p.TeamID, p.WaypointID, p.Status, p.ProofPath).Scan(&p.SubmittedAt)
	if err != nil {
		if pqErr, ok := asPQError(err); ok {
			switch pqErr.Code {
			case pqForeignKeyViolation:
				return ErrProgressRefInvalid
			case pqCheckViolation:
				return ErrCheckViolation
			}
		}
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (r *postgresProgressRepository) GetByID(ctx context.Context, id string) (*models.Progress, error) {
	return r.findOne(ctx, r.db, `SELECT `+progressColumns+` FROM progress WHERE id = $1`, id)
}

func (r *postgresProgressRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id string) (*models.Progress, error) {
	return r.findOne(ctx, r.getExecutor(exec), `SELECT `+progressColumns+` FROM progress WHERE id = $1 FOR UPDATE`, id)
}

func (r *postgresProgressRepository) Latest(ctx context.Context, teamID, waypointID string) (*models.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM progress
		WHERE team_id = $1 AND waypoint_id = $2
		ORDER BY submitted_at DESC LIMIT 1`
	return r.findOne(ctx, r.db, query, teamID, waypointID)
}

func (r *postgresProgressRepository) findOne(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) (*models.Progress, error) {
	p := &models.Progress{}
	if err := scanProgress(exec.QueryRowContext(ctx, query, args...), p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}
	return p, nil
}

func (r *postgresProgressRepository) ListByRace(ctx context.Context, filter ListProgressFilter) ([]models.Progress, error) {
	var qb strings.Builder
	qb.WriteString(`
		SELECT p.id, p.team_id, p.waypoint_id, p.status, p.proof_path, p.submitted_at, p.reviewed_at, p.rejection_reason,
			t.name, w.name
		FROM progress p
		JOIN teams t ON t.id = p.team_id
		JOIN waypoints w ON w.id = p.waypoint_id
		WHERE t.race_id = $1`)
	args := []interface{}{filter.RaceID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		fmt.Fprintf(&qb, " AND p.status = $%d", len(args))
	}
	if filter.Newest {
		qb.WriteString(" ORDER BY p.submitted_at DESC")
	} else {
		qb.WriteString(" ORDER BY p.submitted_at ASC")
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&qb, " LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	items := make([]models.Progress, 0)
	for rows.Next() {
		var p models.Progress
		if err := rows.Scan(&p.ID, &p.TeamID, &p.WaypointID, &p.Status, &p.ProofPath, &p.SubmittedAt,
			&p.ReviewedAt, &p.RejectionReason, &p.TeamName, &p.WaypointName); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *postgresProgressRepository) UpdateReview(ctx context.Context, exec SQLExecutor, id string, status models.ProgressStatus, reason *string, reviewedAt time.Time) (*models.Progress, error) {
	query := `
		UPDATE progress SET status = $1, rejection_reason = $2, reviewed_at = $3
		WHERE id = $4
		RETURNING ` + progressColumns
	return r.findOne(ctx, r.getExecutor(exec), query, status, reason, reviewedAt, id)
}

func (r *postgresProgressRepository) RejectPendingForTeam(ctx context.Context, exec SQLExecutor, teamID, reason string, reviewedAt time.Time) ([]models.Progress, error) {
	query := `
		UPDATE progress SET status = 'rejected', rejection_reason = $1, reviewed_at = $2
		WHERE team_id = $3 AND status = 'pending'
		RETURNING ` + progressColumns

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, reason, reviewedAt, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to reject pending submissions: %w", err)
	}
	defer rows.Close()

	changed := make([]models.Progress, 0)
	for rows.Next() {
		var p models.Progress
		if err := scanProgress(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		changed = append(changed, p)
	}
	return changed, rows.Err()
}
