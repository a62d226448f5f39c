package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC), ID: uuid.New()}

	got, err := ParseCursor(EncodeCursor(want))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.ID, got.ID)
}

func TestParseCursorEmptyAndInvalid(t *testing.T) {
	got, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseCursor("!!!")
	require.Error(t, err)
}

type row struct {
	at time.Time
	id uuid.UUID
}

func TestTrim(t *testing.T) {
	now := time.Now().UTC()
	rows := []row{{now, uuid.New()}, {now.Add(-time.Second), uuid.New()}, {now.Add(-2 * time.Second), uuid.New()}}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Trim(rows, 2, key)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	cursor, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, cursor.ID)

	page, next = Trim(rows, 5, key)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
}
