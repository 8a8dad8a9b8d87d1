package services

import (
	"context"
	"strings"
	"testing"

	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/shortcode"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRaceDefaults(t *testing.T) {
	h := newHarness(t)
	race, err := h.races.CreateRace(context.Background(), organizerID, CreateRaceInput{
		Name: "  Park Run ",
		Waypoints: []WaypointInput{
			{Name: "Second", Lat: 1, Lng: 1, OrderIndex: ptr(1)},
			{Name: "First", Lat: 0, Lng: 0, OrderIndex: ptr(0)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Park Run", race.Name)
	assert.Equal(t, models.RaceStatusLobby, race.Status)
	assert.Equal(t, race.ID[:8], race.ShortCode)
	require.Len(t, race.Waypoints, 2)
	assert.Equal(t, "First", race.Waypoints[0].Name)
	assert.Equal(t, models.DefaultRadiusMeters, race.Waypoints[0].RadiusMeters)
	assert.Equal(t, models.DefaultPointsValue, race.Waypoints[0].PointsValue)
	assert.Equal(t, []string{"races:INSERT"}, h.pub.tables())
}

func TestCreateRaceValidation(t *testing.T) {
	valid := func() WaypointInput { return WaypointInput{Name: "A", Lat: 10, Lng: 10} }

	tests := []struct {
		name  string
		input CreateRaceInput
		field string
	}{
		{"missing name", CreateRaceInput{Waypoints: []WaypointInput{valid()}}, "name"},
		{"no waypoints", CreateRaceInput{Name: "R"}, "waypoints"},
		{"bad status", CreateRaceInput{Name: "R", Status: ptr(models.RaceStatus("finished")), Waypoints: []WaypointInput{valid()}}, "status"},
		{"zero radius", CreateRaceInput{Name: "R", Waypoints: []WaypointInput{{Name: "A", RadiusMeters: ptr(0.0)}}}, "waypoints[0].radius_meters"},
		{"latitude out of range", CreateRaceInput{Name: "R", Waypoints: []WaypointInput{{Name: "A", Lat: 91}}}, "waypoints[0].location"},
		{"waypoint name", CreateRaceInput{Name: "R", Waypoints: []WaypointInput{{Lat: 1}}}, "waypoints[0].name"},
		{"duplicate order", CreateRaceInput{Name: "R", Waypoints: []WaypointInput{
			{Name: "A", OrderIndex: ptr(0)}, {Name: "B", OrderIndex: ptr(0)},
		}}, "waypoints[1].order_index"},
		{"gap in order", CreateRaceInput{Name: "R", Waypoints: []WaypointInput{
			{Name: "A", OrderIndex: ptr(0)}, {Name: "B", OrderIndex: ptr(2)},
		}}, "waypoints"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.races.CreateRace(context.Background(), organizerID, tt.input)
			require.ErrorIs(t, err, ErrValidationFailed)

			var v ValidationErrors
			require.ErrorAs(t, err, &v)
			assert.Contains(t, v, tt.field)
			assert.Empty(t, h.store.races)
		})
	}
}

func TestCreateRaceNameLengthCountsCharacters(t *testing.T) {
	wp := []WaypointInput{{Name: "A", Lat: 10, Lng: 10}}
	h := newHarness(t)

	race, err := h.races.CreateRace(context.Background(), organizerID, CreateRaceInput{Name: strings.Repeat("ü", maxNameLength), Waypoints: wp})
	require.NoError(t, err)
	assert.Equal(t, maxNameLength, len([]rune(race.Name)))

	_, err = h.races.CreateRace(context.Background(), organizerID, CreateRaceInput{Name: strings.Repeat("ü", maxNameLength+1), Waypoints: wp})
	var v ValidationErrors
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v, "name")
}

func TestResolveCode(t *testing.T) {
	h := newHarness(t)
	race := h.seedRace(t, models.RaceStatusLobby)

	got, err := h.races.ResolveCode(context.Background(), "  "+race.ShortCode+" ")
	require.NoError(t, err)
	assert.Equal(t, race.ID, got.ID)

	got, err = h.races.ResolveCode(context.Background(), race.ID)
	require.NoError(t, err)
	assert.Equal(t, race.ShortCode, got.ShortCode)

	_, err = h.races.ResolveCode(context.Background(), "xyz")
	assert.ErrorIs(t, err, ErrInvalidRaceCode)

	other := "00000000"
	if race.ShortCode == other {
		other = "00000001"
	}
	_, err = h.races.ResolveCode(context.Background(), other)
	assert.ErrorIs(t, err, ErrRaceNotFound)

	_, err = h.races.ResolveCode(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrRaceNotFound)
}

func TestResolveCodeAmbiguous(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"abcdef12-0000-4000-8000-000000000001", "abcdef12-0000-4000-8000-000000000002"} {
		h.store.races[id] = &models.Race{ID: id, OrganizerID: organizerID, Name: "dup", Status: models.RaceStatusLobby}
	}
	_, err := h.races.ResolveCode(context.Background(), "ABCDEF12")
	assert.ErrorIs(t, err, ErrAmbiguousRaceCode)
}

func TestResolveCodeTopOfRange(t *testing.T) {
	h := newHarness(t)
	id := "ffffffff-ffff-4fff-bfff-ffffffffffff"
	h.store.races[id] = &models.Race{ID: id, OrganizerID: organizerID, Name: "last", Status: models.RaceStatusLobby}

	b, err := shortcode.Range("ffffffff")
	require.NoError(t, err)
	require.True(t, b.Unbounded())

	got, err := h.races.ResolveCode(context.Background(), "ffffffff")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestUpdateStatusIsMonotonic(t *testing.T) {
	h := newHarness(t)
	race := h.seedRace(t, models.RaceStatusDraft)
	ctx := context.Background()

	updated, err := h.races.UpdateStatus(ctx, organizerID, race.ID, models.RaceStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusActive, updated.Status)

	_, err = h.races.UpdateStatus(ctx, organizerID, race.ID, models.RaceStatusLobby)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = h.races.UpdateStatus(ctx, organizerID, race.ID, "paused")
	assert.ErrorIs(t, err, ErrInvalidRaceStatus)

	_, err = h.races.UpdateStatus(ctx, "someone-else", race.ID, models.RaceStatusActive)
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	assert.Contains(t, h.pub.tables(), "races:UPDATE")
}

func TestGetRaceChecksOwner(t *testing.T) {
	h := newHarness(t)
	race := h.seedRace(t, models.RaceStatusLobby)

	got, err := h.races.GetRace(context.Background(), organizerID, race.ID)
	require.NoError(t, err)
	assert.Len(t, got.Waypoints, 2)

	_, err = h.races.GetRace(context.Background(), "intruder", race.ID)
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	_, err = h.races.GetRace(context.Background(), organizerID, uuid.NewString())
	assert.ErrorIs(t, err, ErrRaceNotFound)

	list, err := h.races.ListRaces(context.Background(), organizerID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, race.ShortCode, list[0].ShortCode)
}
