package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memvault/internal/storage"
)

func TestRebind(t *testing.T) {
	pg := Dialect{NumberedPlaceholders: true}
	assert.Equal(t, "a = $1 AND b = $2", pg.Rebind("a = ? AND b = ?"))

	lite := Dialect{}
	assert.Equal(t, "a = ? AND b = ?", lite.Rebind("a = ? AND b = ?"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestBuildWhere(t *testing.T) {
	floor := 0.5
	now := time.Now()
	where, args := buildWhere("u1", storage.ListFilter{
		MemoryType:    "longterm",
		MinImportance: &floor,
		CreatedBefore: now,
		ExpiredBefore: now,
	})
	assert.Equal(t, "user_id = ? AND memory_type = ? AND importance >= ? AND (created_at < ? OR (expires_at IS NOT NULL AND expires_at <= ?))", where)
	require.Len(t, args, 5)
	assert.Equal(t, "long_term", args[1])
}

func TestNullVector(t *testing.T) {
	var v nullVector
	require.NoError(t, v.Scan(nil))
	assert.Nil(t, v.Slice())

	require.NoError(t, v.Scan([]byte("[1,2.5,-3]")))
	assert.Equal(t, []float32{1, 2.5, -3}, v.Slice())

	val, err := embeddingValue(nil)
	require.NoError(t, err)
	assert.Nil(t, val)
}
