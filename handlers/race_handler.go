package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/ralli/middleware"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/services"
)

type RaceHandler struct {
	raceService services.RaceService
	teamService services.TeamService
}

func NewRaceHandler(rs services.RaceService, ts services.TeamService) *RaceHandler {
	return &RaceHandler{
		raceService: rs,
		teamService: ts,
	}
}

// CreateRace godoc
// @Summary Create a race with its waypoints
// @Tags races
// @Accept json
// @Produce json
// @Param body body services.CreateRaceInput true "Race definition"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]interface{}
// @Security BearerAuth
// @Router /races [post]
func (h *RaceHandler) CreateRace(w http.ResponseWriter, r *http.Request) {
	organizerID, err := middleware.GetOrganizerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input services.CreateRaceInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	race, err := h.raceService.CreateRace(r.Context(), organizerID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"race": race}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListRaces godoc
// @Summary Races run by the current organizer
// @Tags races
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /races [get]
func (h *RaceHandler) ListRaces(w http.ResponseWriter, r *http.Request) {
	organizerID, err := middleware.GetOrganizerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	races, err := h.raceService.ListRaces(r.Context(), organizerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"races": races}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetRace godoc
// @Summary Race details including waypoints
// @Tags races
// @Produce json
// @Param raceID path string true "Race ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /races/{raceID} [get]
func (h *RaceHandler) GetRace(w http.ResponseWriter, r *http.Request) {
	raceID, err := getIDFromURL(r, "raceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	organizerID, err := middleware.GetOrganizerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	race, err := h.raceService.GetRace(r.Context(), organizerID, raceID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"race": race}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateStatus godoc
// @Summary Move a race forward through draft, lobby and active
// @Tags races
// @Accept json
// @Produce json
// @Param raceID path string true "Race ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /races/{raceID}/status [patch]
func (h *RaceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	raceID, err := getIDFromURL(r, "raceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	organizerID, err := middleware.GetOrganizerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input struct {
		Status models.RaceStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Status == "" {
		badRequestResponse(w, r, errors.New("status is required"))
		return
	}

	race, err := h.raceService.UpdateStatus(r.Context(), organizerID, raceID, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"race": race}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListTeams godoc
// @Summary Teams registered in a race
// @Tags races
// @Produce json
// @Param raceID path string true "Race ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /races/{raceID}/teams [get]
func (h *RaceHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	raceID, err := getIDFromURL(r, "raceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	organizerID, err := middleware.GetOrganizerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	teams, err := h.raceService.ListTeams(r.Context(), organizerID, raceID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"teams": teams}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Roster godoc
// @Summary Teams in the caller's race
// @Tags play
// @Produce json
// @Param raceID path string true "Race ID"
// @Param X-Team-Token header string true "Team session token"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Router /play/{raceID}/teams [get]
func (h *RaceHandler) Roster(w http.ResponseWriter, r *http.Request) {
	team, ok := middleware.GetTeamFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "team session required")
		return
	}

	roster, err := h.teamService.Roster(r.Context(), team)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"teams": roster}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Join godoc
// @Summary Join a race with its short code
// @Tags play
// @Accept json
// @Produce json
// @Param body body services.JoinInput true "Code and team name"
// @Success 201 {object} models.JoinResult
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /join [post]
func (h *RaceHandler) Join(w http.ResponseWriter, r *http.Request) {
	var input services.JoinInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.teamService.Join(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
