package player

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/ralli/gamestate"
	"github.com/Dosada05/ralli/geofence"
	"github.com/Dosada05/ralli/handlers"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(teamTokenHeader) != "good-token" {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing team session"})
			return
		}
		next(w, r)
	}
}

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/api/v1/join", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Code     string `json:"code"`
			TeamName string `json:"team_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Code != "7B0E1F" {
			writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "race not found"})
			return
		}
		writeTestJSON(w, http.StatusCreated, models.JoinResult{
			Team:         models.Team{ID: teamID, RaceID: raceID, Name: in.TeamName},
			RaceID:       raceID,
			RaceStatus:   models.RaceStatusLobby,
			SessionToken: "good-token",
		})
	})
	r.Get("/api/v1/play/{raceID}", requireToken(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, models.GameView{
			RaceID:     chi.URLParam(r, "raceID"),
			RaceStatus: models.RaceStatusActive,
			Team:       models.Team{ID: teamID, Score: 40},
			State:      gamestate.Unverified,
		})
	}))
	r.Post("/api/v1/play/{raceID}/verify", requireToken(func(w http.ResponseWriter, r *http.Request) {
		var fix geofence.Fix
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&fix))
		res := geofence.Result{Outcome: geofence.OutcomeTooFar, DistanceMeters: 120}
		if fix.Lat == 52.52 {
			res = geofence.Result{Outcome: geofence.OutcomeVerified, DistanceMeters: 3}
		}
		writeTestJSON(w, http.StatusOK, models.VerifyResult{Result: res, Message: res.Message(), State: gamestate.AwaitingProof})
	}))
	r.Get("/api/v1/play/{raceID}/teams", requireToken(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]interface{}{
			"teams": []models.RosterEntry{{ID: teamID, Name: "Foxes", Self: true}, {ID: "t-2", Name: "Owls"}},
		})
	}))
	r.Post("/api/v1/play/{raceID}/hint", requireToken(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusConflict, map[string]string{"error": "race is not active"})
	}))
	r.Post("/api/v1/play/{raceID}/proof", requireToken(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("photo")
		if err != nil {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "photo is required"})
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		writeTestJSON(w, http.StatusCreated, map[string]interface{}{
			"submission": models.Progress{ID: "p-1", TeamID: teamID, Status: models.ProgressPending, TeamName: string(data)},
		})
	}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestAPIClientCalls(t *testing.T) {
	srv := newAPIServer(t)
	c := NewAPIClient(srv.URL+"/", silentLogger())
	ctx := context.Background()

	joined, err := c.Join(ctx, "7B0E1F", "Foxes")
	require.NoError(t, err)
	assert.Equal(t, raceID, joined.RaceID)
	assert.Equal(t, "good-token", joined.SessionToken)
	assert.Equal(t, "Foxes", joined.Team.Name)

	_, err = c.Join(ctx, "ZZZZZZ", "Foxes")
	assert.ErrorIs(t, err, ErrNotFound)

	view, err := c.View(ctx, raceID, "good-token")
	require.NoError(t, err)
	assert.Equal(t, gamestate.Unverified, view.State)
	assert.Equal(t, 40, view.Team.Score)

	res, err := c.Verify(ctx, raceID, "good-token", geofence.Fix{Point: geofence.Point{Lat: 52.52, Lng: 13.4}, Accuracy: 5})
	require.NoError(t, err)
	assert.True(t, res.Verified())
	assert.Equal(t, "Location verified", res.Message)

	p, err := c.Submit(ctx, raceID, "good-token", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, models.ProgressPending, p.Status)
	assert.Equal(t, "jpeg-bytes", p.TeamName)

	teams, err := c.Teams(ctx, raceID, "good-token")
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.True(t, teams[0].Self)

	_, err = c.Teams(ctx, raceID, "bad-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAPIClientErrors(t *testing.T) {
	srv := newAPIServer(t)
	c := NewAPIClient(srv.URL, silentLogger())
	ctx := context.Background()

	_, err := c.View(ctx, raceID, "stale")
	require.ErrorIs(t, err, ErrUnauthorized)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid or missing team session", apiErr.Message)

	_, err = c.RequestHint(ctx, raceID, "good-token")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "race is not active", apiErr.Message)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestDecodeErrorKeepsValidationDetails(t *testing.T) {
	err := decodeError(http.StatusUnprocessableEntity, []byte(`{"error":{"team_name":"must not be empty"}}`))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "team_name")

	err = decodeError(http.StatusBadGateway, []byte("upstream down"))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestAPIClientSubscribe(t *testing.T) {
	bus := realtime.NewLocalBus(silentLogger())
	hub := realtime.NewHub(bus, silentLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	r := chi.NewRouter()
	r.Get("/ws/races/{raceID}", handlers.NewWebSocketHandler(hub, []string{"*"}, silentLogger()).ServeWs)
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewAPIClient(srv.URL, silentLogger())
	sub, err := c.Subscribe(ctx, raceID, realtime.Filter{Table: realtime.TableProgress, Column: "team_id", Value: teamID})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, clients := hub.Stats()
		return clients == 1
	}, 2*time.Second, 10*time.Millisecond)

	other, err := realtime.NewChange(realtime.TableProgress, realtime.EventUpdate, raceID, map[string]string{"id": "x"}, map[string]string{"team_id": "someone-else"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, other))

	mine, err := realtime.NewChange(realtime.TableProgress, realtime.EventUpdate, raceID, map[string]string{"id": "p-1"}, map[string]string{"team_id": teamID, "status": "approved"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, mine))

	select {
	case c := <-sub.Changes():
		assert.Equal(t, teamID, c.Columns["team_id"])
		assert.Equal(t, "approved", c.Columns["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("no change received")
	}

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Changes():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("changes channel not closed")
	}
}
