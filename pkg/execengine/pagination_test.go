package execengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/execengine"
)

func TestNextCursorExtractsFromBody(t *testing.T) {
	t.Parallel()
	body := []byte(`{"next_cursor":"abc123","items":[1,2,3]}`)
	cursor, ok := execengine.NextCursor(body, execengine.PaginationConfig{NextExpr: "next_cursor"})
	require.True(t, ok)
	assert.Equal(t, "abc123", cursor)
}

func TestNextCursorAbsentReturnsFalse(t *testing.T) {
	t.Parallel()
	body := []byte(`{"items":[1,2,3]}`)
	_, ok := execengine.NextCursor(body, execengine.PaginationConfig{NextExpr: "next_cursor"})
	assert.False(t, ok)
}

func TestShouldStopReadsBooleanField(t *testing.T) {
	t.Parallel()
	body := []byte(`{"done":true}`)
	assert.True(t, execengine.ShouldStop(body, execengine.PaginationConfig{StopExpr: "done"}))
}

func TestExtractItemsReturnsArray(t *testing.T) {
	t.Parallel()
	body := []byte(`{"data":{"items":[{"id":1},{"id":2}]}}`)
	items := execengine.ExtractItems(body, execengine.PaginationConfig{ItemsExpr: "data.items"})
	require.Len(t, items, 2)
}

func TestNextLinkParsesRFC5988Header(t *testing.T) {
	t.Parallel()
	header := `<https://api.example.com/x?page=2>; rel="next", <https://api.example.com/x?page=1>; rel="prev"`
	next, ok := execengine.NextLink(nil, header, execengine.PaginationConfig{})
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com/x?page=2", next)
}

func TestNextLinkReturnsFalseWithoutNextRel(t *testing.T) {
	t.Parallel()
	header := `<https://api.example.com/x?page=1>; rel="prev"`
	_, ok := execengine.NextLink(nil, header, execengine.PaginationConfig{})
	assert.False(t, ok)
}
