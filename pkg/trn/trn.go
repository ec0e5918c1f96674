// Package trn implements the OpenAct Tenant Resource Name: a stable,
// opaque-looking string identifier used as the primary key for every
// persisted entity.
//
// Grammar:
//
//	trn:<system>:<tenant>:<kind>/<connector>/<name>@v<version>
//
// The fourth colon-separated field splits on '/' into (kind, connector,
// name); name may optionally carry a trailing "@v<n>" version suffix. The
// parser is total: it never panics and always returns a structured error.
package trn

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

// Kind enumerates the entity kinds a TRN may reference.
type Kind string

// Recognized kinds.
const (
	KindConnection     Kind = "connection"
	KindAction         Kind = "action"
	KindAuthConnection Kind = "auth-connection"
	KindExecution      Kind = "execution"
)

// System is the fixed second field of every TRN minted by this system.
const System = "openact"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// TRN is a parsed, structurally-valid resource name.
type TRN struct {
	System    string
	Tenant    string
	Kind      Kind
	Connector string
	Name      string
	Version   *int64 // nil means "latest"
}

// Parse parses s into a TRN, or returns a structured *apperrors.Error with
// Kind InvalidArguments (data["reason"] distinguishes InvalidFormat,
// InvalidKind, InvalidVersion). Parse is total: it never panics.
func Parse(s string) (TRN, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) != 4 {
		return TRN{}, invalidFormat(s, "expected 4 colon-separated fields")
	}
	scheme, system, tenant, rest := parts[0], parts[1], parts[2], parts[3]
	if scheme != "trn" {
		return TRN{}, invalidFormat(s, "missing leading 'trn:' scheme")
	}
	if system == "" {
		return TRN{}, invalidFormat(s, "empty system component")
	}
	if tenant == "" {
		return TRN{}, invalidFormat(s, "empty tenant component")
	}

	kindConnName := strings.SplitN(rest, "/", 3)
	if len(kindConnName) != 3 {
		return TRN{}, invalidFormat(s, "expected <kind>/<connector>/<name> in fourth field")
	}
	kindStr, connector, nameAndVersion := kindConnName[0], kindConnName[1], kindConnName[2]
	if kindStr == "" || connector == "" || nameAndVersion == "" {
		return TRN{}, invalidFormat(s, "empty kind, connector, or name component")
	}

	kind := Kind(kindStr)
	switch kind {
	case KindConnection, KindAction, KindAuthConnection, KindExecution:
	default:
		return TRN{}, &apperrors.Error{
			Kind:    apperrors.KindInvalidArguments,
			Message: fmt.Sprintf("unknown TRN kind %q", kindStr),
			Data:    map[string]any{"reason": "InvalidKind", "input": s},
		}
	}

	name := nameAndVersion
	var version *int64
	if idx := strings.LastIndex(nameAndVersion, "@v"); idx >= 0 {
		name = nameAndVersion[:idx]
		versionStr := nameAndVersion[idx+2:]
		n, err := strconv.ParseInt(versionStr, 10, 64)
		if err != nil || n <= 0 {
			return TRN{}, &apperrors.Error{
				Kind:    apperrors.KindInvalidArguments,
				Message: fmt.Sprintf("invalid version suffix %q", versionStr),
				Data:    map[string]any{"reason": "InvalidVersion", "input": s},
			}
		}
		version = &n
	}
	if name == "" {
		return TRN{}, invalidFormat(s, "empty name component")
	}
	if !namePattern.MatchString(name) {
		return TRN{}, invalidFormat(s, fmt.Sprintf("name %q contains invalid characters", name))
	}
	if !namePattern.MatchString(connector) {
		return TRN{}, invalidFormat(s, fmt.Sprintf("connector %q contains invalid characters", connector))
	}

	return TRN{
		System:    system,
		Tenant:    tenant,
		Kind:      kind,
		Connector: connector,
		Name:      name,
		Version:   version,
	}, nil
}

func invalidFormat(input, reason string) *apperrors.Error {
	return &apperrors.Error{
		Kind:    apperrors.KindInvalidArguments,
		Message: fmt.Sprintf("invalid TRN %q: %s", input, reason),
		Data:    map[string]any{"reason": "InvalidFormat", "input": input},
	}
}

// Format renders t back to its canonical string form. Format(Parse(s)) == s
// for any s that parsed successfully and writes its version without a sign
// or leading zeros ("@v07" comes back as "@v7"), and Parse(Format(t)) == t
// for any structurally valid t.
func (t TRN) Format() string {
	var b strings.Builder
	b.WriteString("trn:")
	b.WriteString(t.System)
	b.WriteByte(':')
	b.WriteString(t.Tenant)
	b.WriteByte(':')
	b.WriteString(string(t.Kind))
	b.WriteByte('/')
	b.WriteString(t.Connector)
	b.WriteByte('/')
	b.WriteString(t.Name)
	if t.Version != nil {
		b.WriteString("@v")
		b.WriteString(strconv.FormatInt(*t.Version, 10))
	}
	return b.String()
}

// String implements fmt.Stringer.
func (t TRN) String() string { return t.Format() }

// WithVersion returns a copy of t pinned to version n.
func (t TRN) WithVersion(n int64) TRN {
	t.Version = &n
	return t
}

// WithoutVersion returns a copy of t with no version pin ("latest").
func (t TRN) WithoutVersion() TRN {
	t.Version = nil
	return t
}

// VersionOr returns the pinned version, or def if t names "latest".
func (t TRN) VersionOr(def int64) int64 {
	if t.Version == nil {
		return def
	}
	return *t.Version
}

// New constructs a TRN for the local "openact" system.
func New(tenant string, kind Kind, connector, name string) TRN {
	return TRN{System: System, Tenant: tenant, Kind: kind, Connector: connector, Name: name}
}

// ParseAction parses s and verifies it names a KindAction TRN.
func ParseAction(s string) (TRN, error) {
	return parseExpectingKind(s, KindAction)
}

// ParseConnection parses s and verifies it names a KindConnection TRN.
func ParseConnection(s string) (TRN, error) {
	return parseExpectingKind(s, KindConnection)
}

func parseExpectingKind(s string, want Kind) (TRN, error) {
	t, err := Parse(s)
	if err != nil {
		return TRN{}, err
	}
	if t.Kind != want {
		return TRN{}, &apperrors.Error{
			Kind:    apperrors.KindInvalidArguments,
			Message: fmt.Sprintf("expected TRN of kind %q, got %q", want, t.Kind),
			Data:    map[string]any{"reason": "InvalidKind", "input": s},
		}
	}
	return t, nil
}
