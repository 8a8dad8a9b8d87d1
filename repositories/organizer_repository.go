package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/ralli/models"
)

var (
	ErrOrganizerNotFound      = errors.New("organizer not found")
	ErrOrganizerEmailConflict = errors.New("organizer email conflict")
)

type OrganizerRepository interface {
	Create(ctx context.Context, organizer *models.Organizer) error
	GetByID(ctx context.Context, id string) (*models.Organizer, error)
	GetByEmail(ctx context.Context, email string) (*models.Organizer, error)
}

type postgresOrganizerRepository struct {
	db *sql.DB
}

func NewPostgresOrganizerRepository(db *sql.DB) OrganizerRepository {
	return &postgresOrganizerRepository{db: db}
}

func (r *postgresOrganizerRepository) Create(ctx context.Context, organizer *models.Organizer) error {
	query := `
		INSERT INTO organizers (id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		organizer.ID,
		strings.ToLower(organizer.Email),
		organizer.DisplayName,
		organizer.PasswordHash,
	).Scan(&organizer.CreatedAt)
	if err != nil {
		if pqErr, ok := asPQError(err); ok && pqErr.Code == pqUniqueViolation {
			return ErrOrganizerEmailConflict
		}
		return fmt.Errorf("failed to create organizer: %w", err)
	}
	return nil
}

func (r *postgresOrganizerRepository) GetByID(ctx context.Context, id string) (*models.Organizer, error) {
	return r.findOne(ctx, `SELECT id, email, display_name, password_hash, created_at FROM organizers WHERE id = $1`, id)
}

func (r *postgresOrganizerRepository) GetByEmail(ctx context.Context, email string) (*models.Organizer, error) {
	return r.findOne(ctx, `SELECT id, email, display_name, password_hash, created_at FROM organizers WHERE email = $1`,
		strings.ToLower(email))
}

func (r *postgresOrganizerRepository) findOne(ctx context.Context, query string, arg string) (*models.Organizer, error) {
	o := &models.Organizer{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&o.ID, &o.Email, &o.DisplayName, &o.PasswordHash, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrganizerNotFound
		}
		return nil, fmt.Errorf("failed to get organizer: %w", err)
	}
	return o, nil
}
