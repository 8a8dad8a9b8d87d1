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
	ErrWaypointNotFound      = errors.New("waypoint not found")
	ErrWaypointOrderConflict = errors.New("waypoint order index already used in this race")
	ErrWaypointRaceInvalid   = errors.New("invalid race reference for waypoint")
)

type WaypointRepository interface {
	CreateBatch(ctx context.Context, exec SQLExecutor, waypoints []*models.Waypoint) error
	GetByID(ctx context.Context, id string) (*models.Waypoint, error)
	// GetByRaceAndOrder returns ErrWaypointNotFound when the race has no
	// waypoint at that index, which callers treat as "race finished".
	GetByRaceAndOrder(ctx context.Context, raceID string, orderIndex int) (*models.Waypoint, error)
	ListByRace(ctx context.Context, raceID string) ([]models.Waypoint, error)
	CountByRace(ctx context.Context, raceID string) (int, error)
}

type postgresWaypointRepository struct {
	db *sql.DB
}

func NewPostgresWaypointRepository(db *sql.DB) WaypointRepository {
	return &postgresWaypointRepository{db: db}
}

const waypointColumns = `id, race_id, name, riddle, task_instruction, lat, lng, radius_meters, points_value, order_index, hint, created_at`

func scanWaypoint(s rowScanner, w *models.Waypoint) error {
	return s.Scan(
		&w.ID, &w.RaceID, &w.Name, &w.Riddle, &w.TaskInstruction,
		&w.Lat, &w.Lng, &w.RadiusMeters, &w.PointsValue, &w.OrderIndex, &w.Hint, &w.CreatedAt,
	)
}

func (r *postgresWaypointRepository) CreateBatch(ctx context.Context, exec SQLExecutor, waypoints []*models.Waypoint) error {
	if len(waypoints) == 0 {
		return nil
	}
	if exec == nil {
		exec = r.db
	}

	const perRow = 11
	var sb strings.Builder
	sb.WriteString(`INSERT INTO waypoints (id, race_id, name, riddle, task_instruction, lat, lng, radius_meters, points_value, order_index, hint) VALUES `)
	args := make([]interface{}, 0, len(waypoints)*perRow)
	for i, w := range waypoints {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * perRow
		sb.WriteString("(")
		for j := 1; j <= perRow; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
		args = append(args, w.ID, w.RaceID, w.Name, w.Riddle, w.TaskInstruction,
			w.Lat, w.Lng, w.RadiusMeters, w.PointsValue, w.OrderIndex, w.Hint)
	}
	sb.WriteString(" RETURNING id, created_at")

	rows, err := exec.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		if pqErr, ok := asPQError(err); ok {
			switch pqErr.Code {
			case pqUniqueViolation:
				return ErrWaypointOrderConflict
			case pqForeignKeyViolation:
				return ErrWaypointRaceInvalid
			case pqCheckViolation:
				return ErrCheckViolation
			}
		}
		return fmt.Errorf("failed to insert waypoints: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.Waypoint, len(waypoints))
	for _, w := range waypoints {
		byID[w.ID] = w
	}
	for rows.Next() {
		var id string
		var wp models.Waypoint
		if err := rows.Scan(&id, &wp.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan inserted waypoint: %w", err)
		}
		if w, ok := byID[id]; ok {
			w.CreatedAt = wp.CreatedAt
		}
	}
	return rows.Err()
}

func (r *postgresWaypointRepository) GetByID(ctx context.Context, id string) (*models.Waypoint, error) {
	return r.findOne(ctx, `SELECT `+waypointColumns+` FROM waypoints WHERE id = $1`, id)
}

func (r *postgresWaypointRepository) GetByRaceAndOrder(ctx context.Context, raceID string, orderIndex int) (*models.Waypoint, error) {
	return r.findOne(ctx, `SELECT `+waypointColumns+` FROM waypoints WHERE race_id = $1 AND order_index = $2`, raceID, orderIndex)
}

func (r *postgresWaypointRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Waypoint, error) {
	w := &models.Waypoint{}
	if err := scanWaypoint(r.db.QueryRowContext(ctx, query, args...), w); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWaypointNotFound
		}
		return nil, fmt.Errorf("failed to find waypoint: %w", err)
	}
	return w, nil
}

func (r *postgresWaypointRepository) ListByRace(ctx context.Context, raceID string) ([]models.Waypoint, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+waypointColumns+` FROM waypoints WHERE race_id = $1 ORDER BY order_index`, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waypoints: %w", err)
	}
	defer rows.Close()

	waypoints := make([]models.Waypoint, 0)
	for rows.Next() {
		var w models.Waypoint
		if err := scanWaypoint(rows, &w); err != nil {
			return nil, fmt.Errorf("failed to scan waypoint: %w", err)
		}
		waypoints = append(waypoints, w)
	}
	return waypoints, rows.Err()
}

func (r *postgresWaypointRepository) CountByRace(ctx context.Context, raceID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM waypoints WHERE race_id = $1`, raceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count waypoints: %w", err)
	}
	return n, nil
}
