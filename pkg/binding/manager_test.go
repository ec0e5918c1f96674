package binding_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/binding"
)

type fakeChecker struct{ known map[string]bool }

func (f fakeChecker) AuthExists(_ context.Context, trn string) (bool, error)   { return f.known[trn], nil }
func (f fakeChecker) ActionExists(_ context.Context, trn string) (bool, error) { return f.known[trn], nil }

func TestBindRequiresBothReferencesToExist(t *testing.T) {
	t.Parallel()
	checker := fakeChecker{known: map[string]bool{"trn:openact:acme:auth-connection/github/u1": true}}
	m := binding.New(binding.NewMemoryStore(), checker, checker)

	err := m.Bind(context.Background(), "acme", "trn:openact:acme:auth-connection/github/u1", "trn:openact:acme:action/github/list_repos@v1", "alice")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestBindSucceedsWhenBothReferencesExist(t *testing.T) {
	t.Parallel()
	authTRN := "trn:openact:acme:auth-connection/github/u1"
	actionTRN := "trn:openact:acme:action/github/list_repos@v1"
	checker := fakeChecker{known: map[string]bool{authTRN: true, actionTRN: true}}
	m := binding.New(binding.NewMemoryStore(), checker, checker)

	err := m.Bind(context.Background(), "acme", authTRN, actionTRN, "alice")
	require.NoError(t, err)

	bindings, err := m.ListByTenant(context.Background(), "acme", nil, nil)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, authTRN, bindings[0].AuthTRN)
}

func TestListByTenantFiltersByReference(t *testing.T) {
	t.Parallel()
	authTRN := "trn:openact:acme:auth-connection/github/u1"
	actionA := "trn:openact:acme:action/github/list_repos@v1"
	actionB := "trn:openact:acme:action/github/get_repo@v1"
	checker := fakeChecker{known: map[string]bool{authTRN: true, actionA: true, actionB: true}}
	m := binding.New(binding.NewMemoryStore(), checker, checker)

	require.NoError(t, m.Bind(context.Background(), "acme", authTRN, actionA, ""))
	require.NoError(t, m.Bind(context.Background(), "acme", authTRN, actionB, ""))

	filtered, err := m.ListByTenant(context.Background(), "acme", nil, &actionA)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, actionA, filtered[0].ActionTRN)
}

func TestUnbindRemovesExactTriple(t *testing.T) {
	t.Parallel()
	authTRN := "trn:openact:acme:auth-connection/github/u1"
	actionTRN := "trn:openact:acme:action/github/list_repos@v1"
	checker := fakeChecker{known: map[string]bool{authTRN: true, actionTRN: true}}
	m := binding.New(binding.NewMemoryStore(), checker, checker)
	require.NoError(t, m.Bind(context.Background(), "acme", authTRN, actionTRN, ""))

	removed, err := m.Unbind(context.Background(), "acme", authTRN, actionTRN)
	require.NoError(t, err)
	assert.True(t, removed)

	removedAgain, err := m.Unbind(context.Background(), "acme", authTRN, actionTRN)
	require.NoError(t, err)
	assert.False(t, removedAgain)
}
