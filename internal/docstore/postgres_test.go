package docstore

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWhere(t *testing.T) {
	where, args, err := buildWhere([]Filter{
		Where("status", OpEq, "pending"),
		Where("participants", OpArrayContains, "u1"),
		Where("emailLower", OpPrefix, "a_b%"),
	}, 2)
	require.NoError(t, err)

	assert.Equal(t,
		` AND data @> $2::jsonb AND data @> $3::jsonb AND data->>'emailLower' LIKE $4`, where)
	assert.Equal(t, []any{
		`{"status":"pending"}`,
		`{"participants":["u1"]}`,
		`a\_b\%%`,
	}, args)
}

func TestBuildWhereRejectsUnknownOperator(t *testing.T) {
	_, _, err := buildWhere([]Filter{{Field: "x", Op: "<"}}, 1)
	assert.Error(t, err)

	_, _, err = buildWhere([]Filter{Where("x", OpPrefix, 1)}, 1)
	assert.Error(t, err)
}

func TestMapPQError(t *testing.T) {
	assert.ErrorIs(t, mapPQError(&pq.Error{Code: "23505"}), ErrConflict)

	other := errors.New("boom")
	assert.Equal(t, other, mapPQError(other))
}
