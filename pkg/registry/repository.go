package registry

import "context"

// ConnectionRepository is the storage abstraction the Registry composes
// for connection records. The Registry never talks to SQL directly — an
// external collaborator (spec.md §4.7) supplies this.
type ConnectionRepository interface {
	// Latest returns the highest-version record for (tenant, connector,
	// name), or (zero, false, nil) if none exists yet.
	Latest(ctx context.Context, tenant, connector, name string) (ConnectionRecord, bool, error)
	// GetVersion returns one pinned version of (tenant, connector, name),
	// for TRNs that name an explicit "@vN".
	GetVersion(ctx context.Context, tenant, connector, name string, version int64) (ConnectionRecord, bool, error)
	// Insert writes a new version. Callers are responsible for computing
	// rec.Version and rec.TRN before calling Insert.
	Insert(ctx context.Context, rec ConnectionRecord) error
	// ListByConnector enumerates the latest version of every connection
	// under (tenant, connector).
	ListByConnector(ctx context.Context, tenant, connector string) ([]ConnectionRecord, error)
	// Connectors enumerates the distinct connector names with at least one
	// stored connection for tenant.
	Connectors(ctx context.Context, tenant string) ([]string, error)
}

// ActionRepository is the analogous abstraction for action records.
type ActionRepository interface {
	Latest(ctx context.Context, tenant, connector, name string) (ActionRecord, bool, error)
	GetVersion(ctx context.Context, tenant, connector, name string, version int64) (ActionRecord, bool, error)
	Insert(ctx context.Context, rec ActionRecord) error
	ListByConnector(ctx context.Context, tenant, connector string) ([]ActionRecord, error)
	Connectors(ctx context.Context, tenant string) ([]string, error)
}
