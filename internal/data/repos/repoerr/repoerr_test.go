package repoerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: job_run.project_id, job_run.stage_id")))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, NotFound(gorm.ErrRecordNotFound), ErrNotFound)
	other := errors.New("x")
	assert.Equal(t, other, NotFound(other))
}
