package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Dosada05/ralli/db"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/shortcode"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPostgresScoring runs the scoring statements against a real database.
// It needs DATABASE_URL pointing at a disposable Postgres.
func TestPostgresScoring(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	conn, err := db.Connect(dsn, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(ctx, conn))

	organizers := NewPostgresOrganizerRepository(conn)
	races := NewPostgresRaceRepository(conn)
	teams := NewPostgresTeamRepository(conn)

	org := &models.Organizer{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@example.com",
		DisplayName:  "Integration",
		PasswordHash: "x",
	}
	require.NoError(t, organizers.Create(ctx, org))
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), `DELETE FROM organizers WHERE id = $1`, org.ID)
	})

	race := &models.Race{ID: uuid.NewString(), OrganizerID: org.ID, Name: "Integration", Status: models.RaceStatusActive}
	require.NoError(t, races.Create(ctx, nil, race))

	team := &models.Team{ID: uuid.NewString(), RaceID: race.ID, Name: "Foxes", SessionToken: uuid.NewString()}
	require.NoError(t, teams.Create(ctx, team))
	assert.Equal(t, 0, team.Score)

	advanced, err := teams.Advance(ctx, nil, team.ID, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, advanced.Score)
	assert.Equal(t, 1, advanced.CurrentStepIndex)

	charged, err := teams.DeductHint(ctx, nil, team.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, charged.Score)

	_, err = teams.Advance(ctx, nil, team.ID, 0, 5)
	assert.ErrorIs(t, err, ErrTeamStepMismatch)

	_, err = teams.Advance(ctx, nil, uuid.NewString(), 0, 5)
	assert.ErrorIs(t, err, ErrTeamNotFound)

	b, err := shortcode.Range(shortcode.Of(uuid.MustParse(race.ID)))
	require.NoError(t, err)
	found, err := races.FindByIDRange(ctx, b.Lower, b.Upper, 2)
	require.NoError(t, err)
	ids := make([]string, 0, len(found))
	for _, r := range found {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, race.ID)
}
