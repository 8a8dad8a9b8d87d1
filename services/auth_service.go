package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/repositories"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*models.Organizer, error)
	Login(ctx context.Context, input LoginInput) (*models.Organizer, error)
	GetOrganizer(ctx context.Context, id string) (*models.Organizer, error)
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authService struct {
	organizerRepo repositories.OrganizerRepository
	logger        *slog.Logger
}

func NewAuthService(organizerRepo repositories.OrganizerRepository, logger *slog.Logger) AuthService {
	return &authService{
		organizerRepo: organizerRepo,
		logger:        logger,
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*models.Organizer, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.DisplayName = strings.TrimSpace(input.DisplayName)

	v := ValidationErrors{}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		v.add("email", "must be a valid email address")
	}
	if len(input.Password) < minPasswordLength {
		v.add("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	if input.DisplayName == "" {
		input.DisplayName = strings.SplitN(input.Email, "@", 2)[0]
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	organizer := &models.Organizer{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(input.Email),
		DisplayName:  input.DisplayName,
		PasswordHash: string(hashedPassword),
	}
	if err := s.organizerRepo.Create(ctx, organizer); err != nil {
		if errors.Is(err, repositories.ErrOrganizerEmailConflict) {
			return nil, ErrEmailConflict
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "organizer registered", slog.String("organizer_id", organizer.ID))
	return organizer, nil
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.Organizer, error) {
	organizer, err := s.organizerRepo.GetByEmail(ctx, strings.TrimSpace(input.Email))
	if err != nil {
		if errors.Is(err, repositories.ErrOrganizerNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(organizer.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return organizer, nil
}

func (s *authService) GetOrganizer(ctx context.Context, id string) (*models.Organizer, error) {
	organizer, err := s.organizerRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrOrganizerNotFound) {
			return nil, ErrOrganizerNotFound
		}
		return nil, err
	}
	return organizer, nil
}
