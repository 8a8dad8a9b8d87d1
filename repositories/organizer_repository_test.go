package repositories

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Dosada05/ralli/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrganizerCreateLowercasesEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresOrganizerRepository(db)

	mock.ExpectQuery(sqlFragment("INSERT INTO organizers")).
		WithArgs("o-1", "host@example.com", "Host", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(fixedTime))
	mock.ExpectQuery(sqlFragment("INSERT INTO organizers")).
		WithArgs("o-2", "host@example.com", "Host", "hash").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	o := &models.Organizer{ID: "o-1", Email: "Host@Example.com", DisplayName: "Host", PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), o))
	assert.Equal(t, fixedTime, o.CreatedAt)

	err := repo.Create(context.Background(), &models.Organizer{ID: "o-2", Email: "HOST@example.com", DisplayName: "Host", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ErrOrganizerEmailConflict)
}
