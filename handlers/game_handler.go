package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Dosada05/ralli/geofence"
	"github.com/Dosada05/ralli/middleware"
	"github.com/Dosada05/ralli/services"
)

// maxProofBytes bounds the multipart body of a proof upload.
const maxProofBytes = 20 << 20

type GameHandler struct {
	gameService services.GameService
}

func NewGameHandler(gs services.GameService) *GameHandler {
	return &GameHandler{gameService: gs}
}

// View godoc
// @Summary Current game view of the calling team
// @Tags play
// @Produce json
// @Param raceID path string true "Race ID"
// @Param X-Team-Token header string true "Team session token"
// @Success 200 {object} models.GameView
// @Failure 401 {object} map[string]string
// @Router /play/{raceID} [get]
func (h *GameHandler) View(w http.ResponseWriter, r *http.Request) {
	team, ok := middleware.GetTeamFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "team session required")
		return
	}

	view, err := h.gameService.GetView(r.Context(), team)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Verify godoc
// @Summary Check the device position against the current waypoint
// @Tags play
// @Accept json
// @Produce json
// @Param raceID path string true "Race ID"
// @Param X-Team-Token header string true "Team session token"
// @Param body body geofence.Fix true "Position fix"
// @Success 200 {object} models.VerifyResult
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /play/{raceID}/verify [post]
func (h *GameHandler) Verify(w http.ResponseWriter, r *http.Request) {
	team, ok := middleware.GetTeamFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "team session required")
		return
	}

	var fix geofence.Fix
	if err := readJSON(w, r, &fix); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.gameService.VerifyLocation(r.Context(), team, fix)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Hint godoc
// @Summary Reveal the hint of the current waypoint for 10 points
// @Tags play
// @Produce json
// @Param raceID path string true "Race ID"
// @Param X-Team-Token header string true "Team session token"
// @Success 200 {object} models.HintResult
// @Failure 400 {object} map[string]string
// @Router /play/{raceID}/hint [post]
func (h *GameHandler) Hint(w http.ResponseWriter, r *http.Request) {
	team, ok := middleware.GetTeamFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "team session required")
		return
	}

	result, err := h.gameService.RequestHint(r.Context(), team)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SubmitProof godoc
// @Summary Upload the photo proof for the current waypoint
// @Tags play
// @Accept multipart/form-data
// @Produce json
// @Param raceID path string true "Race ID"
// @Param X-Team-Token header string true "Team session token"
// @Param photo formData file true "Photo"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /play/{raceID}/proof [post]
func (h *GameHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	team, ok := middleware.GetTeamFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "team session required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProofBytes)
	if err := r.ParseMultipartForm(maxProofBytes); err != nil {
		badRequestResponse(w, r, fmt.Errorf("failed to parse multipart form: %w", err))
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			badRequestResponse(w, r, errors.New("photo file is required"))
			return
		}
		badRequestResponse(w, r, fmt.Errorf("failed to get photo from form: %w", err))
		return
	}
	defer file.Close()

	submission, err := h.gameService.SubmitProof(r.Context(), team, file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
