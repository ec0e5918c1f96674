// Package manifest implements the Config Manifest loader and validator
// (C6): declarative YAML/JSON documents describing connectors, their
// connections, and their actions, with environment-variable resolution and
// JSON Schema compilation of action inputs.
package manifest

// Manifest is the root document shape (spec.md §6's manifest file format).
type Manifest struct {
	Version    string                `yaml:"version" json:"version"`
	Metadata   map[string]any        `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Connectors map[string]*Connector `yaml:"connectors" json:"connectors"`

	// duplicateNames is populated by Parse from a raw-node scan (YAML/JSON
	// maps silently collapse duplicate keys on decode, so this is the only
	// place duplicates are still observable) and surfaced by Validate.
	duplicateNames []ValidationError
}

// Connector groups the connections and actions that share a provider
// integration (e.g. "github", "slack").
type Connector struct {
	Connections map[string]*ConnectionConfig `yaml:"connections,omitempty" json:"connections,omitempty"`
	Actions     map[string]*ActionConfig     `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// ConnectionConfig is one named connection entry within a connector.
type ConnectionConfig struct {
	Config      map[string]any `yaml:"config" json:"config"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ActionConfig is one named action entry within a connector.
type ActionConfig struct {
	Connection string `yaml:"connection" json:"connection"`
	// Config carries the request-composition settings the Execution Engine
	// reads: method, url, headers, query, body, auth, retry, pagination.
	Config map[string]any `yaml:"config" json:"config"`

	// Parameters is the legacy array form; the loader normalizes it into
	// InputSchema when present and InputSchema is not already set.
	Parameters []LegacyParameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	// InputSchema is an already-object-shaped JSON Schema; trusted as-is.
	InputSchema map[string]any `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
	// Schema is an alternate spelling, promoted to InputSchema verbatim.
	Schema map[string]any `yaml:"schema,omitempty" json:"schema,omitempty"`

	MCPEnabled   bool           `yaml:"mcp_enabled,omitempty" json:"mcp_enabled,omitempty"`
	MCPOverrides map[string]any `yaml:"mcp_overrides,omitempty" json:"mcp_overrides,omitempty"`
	Metadata     map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// LegacyParameter is one entry of the deprecated "parameters" array form,
// convertible into an object-shaped input_schema by the loader.
type LegacyParameter struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}
