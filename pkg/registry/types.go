// Package registry implements the Action Registry (C7): a durable,
// append-version store for connection and action configuration, with
// import/export pipelines that compute stable TRNs, detect conflicts, and
// redact sensitive fields on the way out.
package registry

import "time"

// ConnectionRecord is one versioned connection configuration.
type ConnectionRecord struct {
	TRN         string
	Tenant      string
	Connector   string
	Name        string
	Version     int64
	Config      map[string]any
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// ActionRecord is one versioned action configuration.
type ActionRecord struct {
	TRN           string
	Tenant        string
	Connector     string
	Name          string
	Version       int64
	ConnectionTRN string
	Config        map[string]any
	MCPEnabled    bool
	MCPOverrides  map[string]any
	Metadata      map[string]any
	CreatedAt     time.Time
}

// VersioningStrategy governs how Import decides whether an incoming
// resource becomes a new version, reuses an existing one, or is rejected.
type VersioningStrategy string

// Recognized strategies (spec.md §4.7).
const (
	// AlwaysBump: next version = max existing + 1, unconditionally.
	AlwaysBump VersioningStrategy = "always_bump"
	// ReuseIfUnchanged: if the incoming config deep-equals the latest
	// version's config, reuse that version and skip the write; otherwise
	// bump.
	ReuseIfUnchanged VersioningStrategy = "reuse_if_unchanged"
	// ForceRollbackToLatest: never write; remap references to the latest
	// existing version, or fall back to version 1 only in dry-run mode
	// when no version exists yet.
	ForceRollbackToLatest VersioningStrategy = "force_rollback_to_latest"
)

// Conflict records one import-time disagreement between an incoming
// resource and what is already stored, surfaced instead of silently
// overwriting.
type Conflict struct {
	Kind      string // "connection" or "action"
	Connector string
	Name      string
	TRN       string
	Detail    string
}

// ImportResult aggregates the outcome of one Import call.
type ImportResult struct {
	ConnectionsCreated int
	ConnectionsUpdated int
	ConnectionsReused  int
	ActionsCreated     int
	ActionsUpdated     int
	ActionsReused      int
	Conflicts          []Conflict
	DryRun             bool
	// PlannedConnectionTRNs maps "<connector>/<name>" to the TRN that
	// would be (or was) used for that connection, for callers that want
	// to cross-reference actions against the plan.
	PlannedConnectionTRNs map[string]string
}
