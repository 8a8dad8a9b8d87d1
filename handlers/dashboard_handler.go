package handlers

import (
	"net/http"

	"github.com/Dosada05/ralli/middleware"
	"github.com/Dosada05/ralli/services"
)

type DashboardHandler struct {
	dashboardService services.DashboardService
}

func NewDashboardHandler(s services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: s}
}

// Leaderboard godoc
// @Summary Ranked teams of a race
// @Tags dashboard
// @Produce json
// @Param raceID path string true "Race ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /races/{raceID}/leaderboard [get]
func (h *DashboardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	raceID, err := getIDFromURL(r, "raceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entries, err := h.dashboardService.Leaderboard(r.Context(), raceID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Activity godoc
// @Summary Latest submissions of a race
// @Tags dashboard
// @Produce json
// @Param raceID path string true "Race ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /races/{raceID}/activity [get]
func (h *DashboardHandler) Activity(w http.ResponseWriter, r *http.Request) {
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

	items, err := h.dashboardService.Activity(r.Context(), organizerID, raceID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"activity": items}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// LiveMap godoc
// @Summary Waypoints and team positions of a race
// @Tags dashboard
// @Produce json
// @Param raceID path string true "Race ID"
// @Success 200 {object} models.MapSnapshot
// @Security BearerAuth
// @Router /races/{raceID}/map [get]
func (h *DashboardHandler) LiveMap(w http.ResponseWriter, r *http.Request) {
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

	snapshot, err := h.dashboardService.LiveMap(r.Context(), organizerID, raceID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, snapshot, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
