package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/ralli/models"
)

var (
	ErrRaceNotFound         = errors.New("race not found")
	ErrRaceOrganizerInvalid = errors.New("invalid organizer reference")
)

type RaceRepository interface {
	Create(ctx context.Context, exec SQLExecutor, race *models.Race) error
	GetByID(ctx context.Context, id string) (*models.Race, error)
	// FindByIDRange returns races whose id lies in [lower, upper). An empty
	// upper leaves the range open.
	FindByIDRange(ctx context.Context, lower, upper string, limit int) ([]models.Race, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]models.Race, error)
	UpdateStatus(ctx context.Context, id string, status models.RaceStatus) error
}

type postgresRaceRepository struct {
	db *sql.DB
}

func NewPostgresRaceRepository(db *sql.DB) RaceRepository {
	return &postgresRaceRepository{db: db}
}

func (r *postgresRaceRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const raceColumns = `id, organizer_id, name, description, status, created_at`

func scanRace(s rowScanner, race *models.Race) error {
	return s.Scan(&race.ID, &race.OrganizerID, &race.Name, &race.Description, &race.Status, &race.CreatedAt)
}

func (r *postgresRaceRepository) Create(ctx context.Context, exec SQLExecutor, race *models.Race) error {
	query := `
		INSERT INTO races (id, organizer_id, name, description, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		race.ID, race.OrganizerID, race.Name, race.Description, race.Status,
	).Scan(&race.CreatedAt)
	if err != nil {
		if pqErr, ok := asPQError(err); ok {
			switch pqErr.Code {
			case pqForeignKeyViolation:
				return ErrRaceOrganizerInvalid
			case pqCheckViolation:
				return ErrCheckViolation
			}
		}
		return fmt.Errorf("failed to create race: %w", err)
	}
	return nil
}

func (r *postgresRaceRepository) GetByID(ctx context.Context, id string) (*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE id = $1`

	race := &models.Race{}
	err := scanRace(r.db.QueryRowContext(ctx, query, id), race)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRaceNotFound
		}
		return nil, fmt.Errorf("failed to get race %s: %w", id, err)
	}
	return race, nil
}

func (r *postgresRaceRepository) FindByIDRange(ctx context.Context, lower, upper string, limit int) ([]models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE id >= $1::uuid`
	args := []interface{}{lower}
	if upper != "" {
		query += ` AND id < $2::uuid`
		args = append(args, upper)
	}
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	return r.list(ctx, query, args...)
}

func (r *postgresRaceRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE organizer_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, organizerID)
}

func (r *postgresRaceRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Race, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list races: %w", err)
	}
	defer rows.Close()

	races := make([]models.Race, 0)
	for rows.Next() {
		var race models.Race
		if err := scanRace(rows, &race); err != nil {
			return nil, fmt.Errorf("failed to scan race: %w", err)
		}
		races = append(races, race)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return races, nil
}

func (r *postgresRaceRepository) UpdateStatus(ctx context.Context, id string, status models.RaceStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE races SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		if pqErr, ok := asPQError(err); ok && pqErr.Code == pqCheckViolation {
			return ErrCheckViolation
		}
		return fmt.Errorf("failed to update race status: %w", err)
	}
	return checkAffectedRows(result, ErrRaceNotFound)
}
