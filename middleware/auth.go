package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/services"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const (
	organizerContextKey contextKey = "organizer"
	teamContextKey      contextKey = "team"
)

const (
	jwtClaimOrganizerID = "organizer_id"
	jwtClaimRole        = "role"

	roleOrganizer = "organizer"

	// TeamTokenHeader carries the session token handed out on join.
	TeamTokenHeader = "X-Team-Token"
)

var ErrMissingClaims = errors.New("organizer claims not found in context")

// IssueToken signs an HS256 token for an organizer.
func IssueToken(secret, organizerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		jwtClaimOrganizerID: organizerID,
		jwtClaimRole:        roleOrganizer,
		"exp":               now.Add(ttl).Unix(),
		"iat":               now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Authenticate requires a valid organizer bearer token and stores its claims
// in the request context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}

			token, err := jwt.Parse(strings.TrimSpace(raw), func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || claims[jwtClaimRole] != roleOrganizer {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), organizerContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOrganizerIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(organizerContextKey).(jwt.MapClaims)
	if !ok {
		return "", ErrMissingClaims
	}
	id, ok := claims[jwtClaimOrganizerID].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimOrganizerID)
	}
	return id, nil
}

// TeamAuthenticator resolves a session token within a race.
type TeamAuthenticator interface {
	Authenticate(ctx context.Context, raceID, token string) (*models.Team, error)
}

// TeamSession resolves the X-Team-Token header against the race in the
// {raceID} URL parameter.
func TeamSession(auth TeamAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(TeamTokenHeader)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "team session token required")
				return
			}

			team, err := auth.Authenticate(r.Context(), chi.URLParam(r, "raceID"), token)
			if err != nil {
				if errors.Is(err, services.ErrInvalidSession) {
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				logger.ErrorContext(r.Context(), "team session lookup failed", slog.Any("error", err))
				writeError(w, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
				return
			}

			ctx := context.WithValue(r.Context(), teamContextKey, team)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetTeamFromContext(ctx context.Context) (*models.Team, bool) {
	team, ok := ctx.Value(teamContextKey).(*models.Team)
	return team, ok && team != nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
