package repositories

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHintRevealIsOneShot(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresHintRepository(db)

	const insert = "INSERT INTO hint_reveals (team_id, waypoint_id) VALUES ($1, $2) ON CONFLICT (team_id, waypoint_id) DO NOTHING"
	mock.ExpectExec(sqlFragment(insert)).WithArgs(teamID, waypointID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlFragment(insert)).WithArgs(teamID, waypointID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(sqlFragment(insert)).WithArgs(teamID, waypointID).WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

	first, err := repo.Reveal(context.Background(), nil, teamID, waypointID)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.Reveal(context.Background(), nil, teamID, waypointID)
	require.NoError(t, err)
	assert.False(t, again)

	_, err = repo.Reveal(context.Background(), nil, teamID, waypointID)
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestHintIsRevealed(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresHintRepository(db)

	mock.ExpectQuery(sqlFragment("SELECT EXISTS")).
		WithArgs(teamID, waypointID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.IsRevealed(context.Background(), teamID, waypointID)
	require.NoError(t, err)
	assert.True(t, ok)
}
