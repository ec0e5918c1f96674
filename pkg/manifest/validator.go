package manifest

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

// ValidationError describes one problem found while validating a manifest.
// Validate collects every error it can find rather than stopping at the
// first, so a single pass reports everything wrong with the document.
type ValidationError struct {
	Connector string
	Kind      string // "DuplicateConnection", "DuplicateAction", "UnknownConnection", "SchemaCompilation"
	Name      string
	Detail    string
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s/%s: %s: %s", v.Connector, v.Name, v.Kind, v.Detail)
}

// Validate checks m for duplicate names, dangling connection references,
// and (if present) input_schema compilability, per spec.md §4.6. It
// returns every problem found, not just the first.
func Validate(m *Manifest) []ValidationError {
	errs := append([]ValidationError(nil), m.duplicateNames...)

	for connectorName, connector := range m.Connectors {
		for actionName, action := range connector.Actions {
			if action.Connection == "" {
				continue
			}
			if _, ok := connector.Connections[action.Connection]; !ok {
				errs = append(errs, ValidationError{
					Connector: connectorName, Kind: "UnknownConnection", Name: actionName,
					Detail: fmt.Sprintf("references connection %q, which is not declared in this connector", action.Connection),
				})
			}
			if action.InputSchema != nil {
				if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(action.InputSchema)); err != nil {
					errs = append(errs, ValidationError{
						Connector: connectorName, Kind: "SchemaCompilation", Name: actionName,
						Detail: err.Error(),
					})
				}
			}
		}
	}

	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Connector != errs[j].Connector {
			return errs[i].Connector < errs[j].Connector
		}
		return errs[i].Name < errs[j].Name
	})
	return errs
}

// ValidateOrError is Validate wrapped into a single *apperrors.Error for
// callers (the import pipeline, the CLI) that want a fail-fast boundary
// rather than the raw error list.
func ValidateOrError(m *Manifest) error {
	errs := Validate(m)
	if len(errs) == 0 {
		return nil
	}
	details := make([]map[string]any, len(errs))
	for i, e := range errs {
		details[i] = map[string]any{"connector": e.Connector, "kind": e.Kind, "name": e.Name, "detail": e.Detail}
	}
	return apperrors.New(apperrors.KindSchemaValidation, fmt.Sprintf("manifest failed validation with %d error(s)", len(errs))).
		WithData(map[string]any{"errors": details})
}
