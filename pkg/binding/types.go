// Package binding implements the Binding Manager (C8): the many-to-many
// association between auth connections and actions that lets the
// Execution Engine know which credential to use for a given action call.
package binding

import "time"

// Binding is one (tenant, auth_trn, action_trn) association.
type Binding struct {
	Tenant    string
	AuthTRN   string
	ActionTRN string
	CreatedBy string
	CreatedAt time.Time
}
