package services

import (
	"context"
	"strings"
	"testing"

	"github.com/Dosada05/ralli/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin(t *testing.T) {
	h := newHarness(t)
	race := h.seedRace(t, models.RaceStatusLobby)

	res, err := h.teams.Join(context.Background(), JoinInput{Code: race.ShortCode, TeamName: " Foxes "})
	require.NoError(t, err)
	assert.Equal(t, "Foxes", res.Team.Name)
	assert.Equal(t, race.ID, res.RaceID)
	assert.Equal(t, 0, res.Team.CurrentStepIndex)
	assert.Equal(t, 0, res.Team.Score)
	_, err = uuid.Parse(res.SessionToken)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TeamsJoined))
	assert.Contains(t, h.pub.tables(), "teams:INSERT")

	team, err := h.teams.Authenticate(context.Background(), race.ID, res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, res.Team.ID, team.ID)
}

func TestJoinRejections(t *testing.T) {
	h := newHarness(t)
	draft := h.seedRace(t, models.RaceStatusDraft)

	_, err := h.teams.Join(context.Background(), JoinInput{Code: draft.ShortCode, TeamName: "Owls"})
	assert.ErrorIs(t, err, ErrRaceNotJoinable)

	_, err = h.teams.Join(context.Background(), JoinInput{Code: draft.ShortCode})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = h.teams.Join(context.Background(), JoinInput{Code: "nothex!!", TeamName: "Owls"})
	assert.ErrorIs(t, err, ErrInvalidRaceCode)
}

func TestJoinNameLengthCountsCharacters(t *testing.T) {
	h := newHarness(t)
	race := h.seedRace(t, models.RaceStatusLobby)

	// two bytes per rune, so the byte length is twice the limit
	name := strings.Repeat("é", maxTeamNameLength)
	res, err := h.teams.Join(context.Background(), JoinInput{Code: race.ShortCode, TeamName: name})
	require.NoError(t, err)
	assert.Equal(t, name, res.Team.Name)

	_, err = h.teams.Join(context.Background(), JoinInput{Code: race.ShortCode, TeamName: name + "é"})
	require.ErrorIs(t, err, ErrValidationFailed)
	var v ValidationErrors
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v, "team_name")
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)
	race := h.seedRace(t, models.RaceStatusActive)
	team := h.join(t, race, "Bees")

	tests := []struct {
		name   string
		raceID string
		token  string
	}{
		{"empty token", race.ID, ""},
		{"wrong token", race.ID, uuid.NewString()},
		{"other race", uuid.NewString(), team.SessionToken},
		{"malformed race", "not-a-uuid", team.SessionToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.teams.Authenticate(context.Background(), tt.raceID, tt.token)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}
}

func TestRoster(t *testing.T) {
	h := newHarness(t)
	race := h.seedRace(t, models.RaceStatusLobby)
	other := h.seedRace(t, models.RaceStatusLobby)

	foxes := h.join(t, race, "Foxes")
	owls := h.join(t, race, "Owls")
	h.join(t, other, "Bees")

	roster, err := h.teams.Roster(context.Background(), owls)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, foxes.ID, roster[0].ID)
	assert.False(t, roster[0].Self)
	assert.Equal(t, "Owls", roster[1].Name)
	assert.True(t, roster[1].Self)
	assert.Equal(t, owls.CreatedAt, roster[1].JoinedAt)
}
