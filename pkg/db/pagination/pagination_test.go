package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeCursorRoundTrip(t *testing.T) {
	at := time.Date(2024, 7, 1, 12, 0, 0, 123456789, time.UTC)
	token := TimeCursorToken("42", at)

	id, decoded, err := DecodeTimeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.True(t, at.Equal(*decoded))
}

func TestDecodeTimeCursorEmptyAndInvalid(t *testing.T) {
	id, at, err := DecodeTimeCursor("")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Nil(t, at)

	_, _, err = DecodeTimeCursor("!!!")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, ClampPageSize(0))
	assert.Equal(t, 10, ClampPageSize(10))
	assert.Equal(t, MaxPageSize, ClampPageSize(1000))
}

func TestBuildCursorPageInfo(t *testing.T) {
	items := []*int{new(int), new(int), new(int)}
	info := BuildCursorPageInfo(items, 2, func(*int) string { return "next" })
	assert.True(t, info.HasMore)
	assert.Equal(t, "next", info.NextPageToken)

	info = BuildCursorPageInfo(items[:2], 2, func(*int) string { return "next" })
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
