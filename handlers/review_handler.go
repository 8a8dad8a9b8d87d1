package handlers

import (
	"net/http"

	"github.com/Dosada05/ralli/middleware"
	"github.com/Dosada05/ralli/services"
)

type ReviewHandler struct {
	reviewService services.ReviewService
}

func NewReviewHandler(rs services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: rs}
}

// Queue godoc
// @Summary Pending submissions of a race, oldest first
// @Tags review
// @Produce json
// @Param raceID path string true "Race ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /races/{raceID}/submissions [get]
func (h *ReviewHandler) Queue(w http.ResponseWriter, r *http.Request) {
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

	items, err := h.reviewService.Queue(r.Context(), organizerID, raceID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"submissions": items}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Review godoc
// @Summary Approve or reject a submission
// @Tags review
// @Accept json
// @Produce json
// @Param submissionID path string true "Submission ID"
// @Param body body services.ReviewInput true "Decision"
// @Success 200 {object} services.ReviewResult
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /submissions/{submissionID}/review [post]
func (h *ReviewHandler) Review(w http.ResponseWriter, r *http.Request) {
	submissionID, err := getIDFromURL(r, "submissionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	organizerID, err := middleware.GetOrganizerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input services.ReviewInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.reviewService.Review(r.Context(), organizerID, submissionID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ForceSkip godoc
// @Summary Move a team past its current waypoint without points
// @Tags review
// @Produce json
// @Param teamID path string true "Team ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /teams/{teamID}/skip [post]
func (h *ReviewHandler) ForceSkip(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	organizerID, err := middleware.GetOrganizerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	team, err := h.reviewService.ForceSkip(r.Context(), organizerID, teamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"team": team}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
