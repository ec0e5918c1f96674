package binding

import (
	"context"
	"time"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

func timeNow() time.Time { return time.Now().UTC() }

// AuthChecker answers whether an auth_trn names a connection that exists.
// The Binding Manager depends on this rather than importing credstore
// directly, since "exists" can mean different things depending on caller
// (credential store row vs. registry connection record).
type AuthChecker interface {
	AuthExists(ctx context.Context, authTRN string) (bool, error)
}

// ActionChecker answers whether an action_trn names an action that exists.
type ActionChecker interface {
	ActionExists(ctx context.Context, actionTRN string) (bool, error)
}

// Store is the persistence abstraction for Binding rows.
type Store interface {
	Bind(ctx context.Context, b Binding) error
	Unbind(ctx context.Context, tenant, authTRN, actionTRN string) (bool, error)
	ListByTenant(ctx context.Context, tenant string, authTRN, actionTRN *string) ([]Binding, error)
}

// Manager implements bind/unbind/list_by_tenant (spec.md §4.8).
type Manager struct {
	store   Store
	auths   AuthChecker
	actions ActionChecker
	now     func() time.Time
}

// New constructs a Manager. auths and actions supply the pre-existence
// checks bind requires before writing.
func New(store Store, auths AuthChecker, actions ActionChecker) *Manager {
	return &Manager{store: store, auths: auths, actions: actions, now: timeNow}
}

// Bind associates authTRN with actionTRN under tenant, after verifying both
// exist. Either missing reference is a structured NotFound (spec.md §4.8).
func (m *Manager) Bind(ctx context.Context, tenant, authTRN, actionTRN, createdBy string) error {
	authOK, err := m.auths.AuthExists(ctx, authTRN)
	if err != nil {
		return err
	}
	if !authOK {
		return apperrors.New(apperrors.KindNotFound, "auth connection does not exist").
			WithData(map[string]any{"auth_trn": authTRN})
	}

	actionOK, err := m.actions.ActionExists(ctx, actionTRN)
	if err != nil {
		return err
	}
	if !actionOK {
		return apperrors.New(apperrors.KindNotFound, "action does not exist").
			WithData(map[string]any{"action_trn": actionTRN})
	}

	return m.store.Bind(ctx, Binding{Tenant: tenant, AuthTRN: authTRN, ActionTRN: actionTRN, CreatedBy: createdBy, CreatedAt: m.now()})
}

// Unbind removes the (tenant, authTRN, actionTRN) binding, if it exists.
func (m *Manager) Unbind(ctx context.Context, tenant, authTRN, actionTRN string) (bool, error) {
	return m.store.Unbind(ctx, tenant, authTRN, actionTRN)
}

// ListByTenant enumerates bindings for tenant, optionally filtered by
// either reference.
func (m *Manager) ListByTenant(ctx context.Context, tenant string, authTRN, actionTRN *string) ([]Binding, error) {
	return m.store.ListByTenant(ctx, tenant, authTRN, actionTRN)
}
