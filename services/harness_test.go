package services

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/ralli/geofence"
	"github.com/Dosada05/ralli/metrics"
	"github.com/Dosada05/ralli/models"
	"github.com/stretchr/testify/require"
)

const organizerID = "11111111-1111-1111-1111-111111111111"

type harness struct {
	store     *memStore
	uploader  *fakeUploader
	pub       *recordingPublisher
	metrics   *metrics.Metrics
	races     RaceService
	teams     TeamService
	game      GameService
	reviews   ReviewService
	dashboard DashboardService
	auth      AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := newMemStore()
	h := &harness{store: s, uploader: newFakeUploader(), pub: &recordingPublisher{}, metrics: metrics.New()}
	log := silentLogger()
	tx := memTx{s}
	raceRepo, wpRepo, teamRepo := memRaceRepo{s}, memWaypointRepo{s}, memTeamRepo{s}
	progressRepo, hintRepo := memProgressRepo{s}, memHintRepo{s}

	h.races = NewRaceService(raceRepo, wpRepo, teamRepo, tx, h.pub, log)
	h.teams = NewTeamService(teamRepo, h.races, h.pub, h.metrics, log)
	game := NewGameService(raceRepo, wpRepo, teamRepo, progressRepo, hintRepo, tx, h.uploader, h.pub, h.metrics, log).(*gameService)
	game.now = func() time.Time { return s.clock }
	h.game = game
	reviews := NewReviewService(raceRepo, wpRepo, teamRepo, progressRepo, tx, h.uploader, h.pub, h.metrics, log).(*reviewService)
	reviews.now = func() time.Time { return s.clock }
	h.reviews = reviews
	h.dashboard = NewDashboardService(raceRepo, wpRepo, teamRepo, progressRepo, h.uploader, log)
	h.auth = NewAuthService(memOrganizerRepo{s}, log)
	return h
}

var (
	startPoint  = geofence.Point{Lat: 52.5200, Lng: 13.4050}
	secondPoint = geofence.Point{Lat: 52.5163, Lng: 13.3777}
)

func ptr[T any](v T) *T { return &v }

// seedRace creates a two-waypoint race in the given status. The first
// waypoint carries a hint.
func (h *harness) seedRace(t *testing.T, status models.RaceStatus) *models.Race {
	t.Helper()
	race, err := h.races.CreateRace(context.Background(), organizerID, CreateRaceInput{
		Name:   "City Hunt",
		Status: &status,
		Waypoints: []WaypointInput{
			{Name: "Gate", Riddle: "Where the horses stand", TaskInstruction: "Photo with the quadriga", Lat: startPoint.Lat, Lng: startPoint.Lng, Hint: ptr("Brandenburg")},
			{Name: "Tower", Riddle: "Gold on a column", TaskInstruction: "Photo of the angel", Lat: secondPoint.Lat, Lng: secondPoint.Lng, PointsValue: ptr(150)},
		},
	})
	require.NoError(t, err)
	return race
}

func (h *harness) join(t *testing.T, race *models.Race, name string) *models.Team {
	t.Helper()
	res, err := h.teams.Join(context.Background(), JoinInput{Code: race.ShortCode, TeamName: name})
	require.NoError(t, err)
	team := res.Team
	team.SessionToken = res.SessionToken
	return &team
}

// arrive verifies the team at the waypoint it is currently on.
func (h *harness) arrive(t *testing.T, team *models.Team, at geofence.Point) {
	t.Helper()
	res, err := h.game.VerifyLocation(context.Background(), team, geofence.Fix{Point: at, Accuracy: 5})
	require.NoError(t, err)
	require.True(t, res.Verified())
}

func (h *harness) submit(t *testing.T, team *models.Team) *models.Progress {
	t.Helper()
	p, err := h.game.SubmitProof(context.Background(), team, photo(t, 64, 48))
	require.NoError(t, err)
	return p
}

func (h *harness) reload(t *testing.T, team *models.Team) *models.Team {
	t.Helper()
	fresh, err := memTeamRepo{h.store}.GetByID(context.Background(), nil, team.ID)
	require.NoError(t, err)
	return fresh
}
