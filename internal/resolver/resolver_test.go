package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "campaign-workers/internal/common/errors"
	"campaign-workers/internal/common/logger"
)

var resolvedColumns = []string{
	"id", "email", "first_name", "last_name", "company", "city", "phone",
}

// ==========================
// Query Builder Tests
// ==========================

func TestBuildQuery_BaseExclusions(t *testing.T) {
	query, args := buildQuery(1, &Filter{})

	assert.Contains(t, query, "c.org_id = $1")
	assert.Contains(t, query, "c.email IS NOT NULL")
	assert.Contains(t, query, "COALESCE(c.unsubscribed, FALSE) = FALSE")
	assert.Contains(t, query, "FROM unsubscribes u")
	assert.Contains(t, query, "ORDER BY c.id")
	assert.Len(t, args, 1)
}

func TestBuildQuery_GroupsAppendANDClauses(t *testing.T) {
	filter := &Filter{
		Cities:     []string{"Athens"},
		Tags:       []string{"vip", "newsletter"},
		Segments:   []int64{3},
		Categories: []string{"retail"},
	}

	query, args := buildQuery(1, filter)

	assert.Contains(t, query, "c.city = ANY($2)")
	assert.Contains(t, query, "c.category = ANY($3)")
	assert.Contains(t, query, "t.tag = ANY($4)")
	assert.Contains(t, query, "m.segment_id = ANY($5)")
	assert.Len(t, args, 5)
	// Each group is ANDed onto the base predicate.
	assert.Equal(t, 4, strings.Count(query, " AND c.")+strings.Count(query, " AND EXISTS"))
}

// ==========================
// Resolve Tests
// ==========================

func TestResolver_Resolve_ReturnsMatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(resolvedColumns).
		AddRow(int64(100), "a@example.com", "Anna", "K", "Acme", "Athens", "").
		AddRow(int64(101), "b@example.com", "", "", "", "Athens", "")

	mock.ExpectQuery(`SELECT c\.id, c\.email`).
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnRows(rows)

	r := NewResolver(db, logger.NewNoOpLogger())
	out, err := r.Resolve(context.Background(), 1, `{"cities":["Athens"]}`)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(100), out[0].CustomerID)
	assert.Equal(t, "b@example.com", out[1].Email)
}

func TestResolver_Resolve_EmptyAudience(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT c\.id, c\.email`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(resolvedColumns))

	r := NewResolver(db, logger.NewNoOpLogger())
	out, err := r.Resolve(context.Background(), 1, "")

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestResolver_Resolve_InvalidFilter(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r := NewResolver(db, logger.NewNoOpLogger())
	out, err := r.Resolve(context.Background(), 1, `{"regions":["Attica"]}`)

	assert.Nil(t, out)
	assert.Equal(t, apperrors.ErrCodeInvalidFilter, apperrors.CodeOf(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestResolver_Resolve_QueryFailureIsRetryable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT c\.id, c\.email`).
		WithArgs(int64(1)).
		WillReturnError(context.DeadlineExceeded)

	r := NewResolver(db, logger.NewNoOpLogger())
	out, err := r.Resolve(context.Background(), 1, "")

	assert.Nil(t, out)
	assert.Equal(t, apperrors.ErrCodeResolutionFailed, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsRetryable(err))
}
