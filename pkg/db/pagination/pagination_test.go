package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "abc", DonatedAt: "2024-01-02T03:04:05Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "abc", cursor.ID)
	assert.Equal(t, "2024-01-02T03:04:05Z", cursor.DonatedAt)

	_, err = DecodeCursor("not base64 !!")
	assert.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []string{"a", "b", "c"}
	page, info := BuildCursorPageInfo(rows, 2, func(s string) string { return "after-" + s })
	assert.Equal(t, []string{"a", "b"}, page)
	assert.True(t, info.HasMore)
	assert.Equal(t, "after-b", info.NextPageToken)

	page, info = BuildCursorPageInfo(rows, 5, func(s string) string { return s })
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestNormalizePageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, NormalizePageSize(0))
	assert.Equal(t, MaxPageSize, NormalizePageSize(1000))
	assert.Equal(t, 10, NormalizePageSize(10))
}
