package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

// Load reads a manifest file at path, resolving ${NAME}/${NAME:default} env
// var tokens and normalizing legacy action schemas, per spec.md §4.6.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound, err, "failed to read manifest file")
	}
	return Parse(raw, filepath.Ext(path))
}

// Parse decodes raw manifest bytes. ext must be ".json", ".yaml", ".yml" or
// ""; all four are decoded with the YAML decoder (JSON is itself valid YAML,
// so JSON documents passed with a ".yaml" name also parse). Any other
// extension is rejected with reason InvalidStructure.
func Parse(raw []byte, ext string) (*Manifest, error) {
	resolved, err := resolveEnvTokens(string(raw))
	if err != nil {
		return nil, err
	}

	var m Manifest
	switch strings.ToLower(ext) {
	case ".json", ".yaml", ".yml", "":
		if err := yaml.Unmarshal([]byte(resolved), &m); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidArguments, err, "failed to parse manifest document").
				WithData(map[string]any{"reason": "InvalidStructure"})
		}
	default:
		return nil, apperrors.New(apperrors.KindInvalidArguments, "unrecognized manifest file extension "+ext).
			WithData(map[string]any{"reason": "InvalidStructure"})
	}

	if m.Connectors == nil {
		return nil, apperrors.New(apperrors.KindInvalidArguments, "manifest root must declare a connectors map").
			WithData(map[string]any{"reason": "InvalidStructure"})
	}

	for _, connector := range m.Connectors {
		for _, action := range connector.Actions {
			normalizeActionSchema(action)
		}
	}

	m.duplicateNames = findDuplicateNames(resolved)
	return &m, nil
}

// findDuplicateNames re-parses the document as a raw yaml.Node tree to spot
// duplicate keys under each connector's "connections" and "actions" maps —
// information Unmarshal itself discards, since the last occurrence of a
// duplicate map key silently wins.
func findDuplicateNames(resolved string) []ValidationError {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(resolved), &root); err != nil || len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	connectors := mappingValue(doc, "connectors")
	if connectors == nil {
		return nil
	}

	var errs []ValidationError
	for i := 0; i+1 < len(connectors.Content); i += 2 {
		connectorName := connectors.Content[i].Value
		connectorNode := connectors.Content[i+1]

		if dups := duplicateKeys(mappingValue(connectorNode, "connections")); len(dups) > 0 {
			for _, name := range dups {
				errs = append(errs, ValidationError{Connector: connectorName, Kind: "DuplicateConnection", Name: name,
					Detail: fmt.Sprintf("connection %q is declared more than once", name)})
			}
		}
		if dups := duplicateKeys(mappingValue(connectorNode, "actions")); len(dups) > 0 {
			for _, name := range dups {
				errs = append(errs, ValidationError{Connector: connectorName, Kind: "DuplicateAction", Name: name,
					Detail: fmt.Sprintf("action %q is declared more than once", name)})
			}
		}
	}
	return errs
}

// mappingValue returns the value node mapped to key within a mapping node,
// or nil if mapping is nil, not a mapping, or the key is absent.
func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// duplicateKeys returns key names that appear more than once in mapping,
// in first-seen order.
func duplicateKeys(mapping *yaml.Node) []string {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	seen := map[string]int{}
	var order []string
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		if seen[key] == 0 {
			order = append(order, key)
		}
		seen[key]++
	}
	var dups []string
	for _, key := range order {
		if seen[key] > 1 {
			dups = append(dups, key)
		}
	}
	return dups
}

// envTokenPattern matches ${NAME} and ${NAME:default}. NAME follows shell
// env var conventions: letters, digits, underscore, not starting with a
// digit.
var envTokenPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:([^}]*))?\}`)

// resolveEnvTokens substitutes every ${NAME} / ${NAME:default} token found
// anywhere in raw. A token with no default that isn't set in the process
// environment is an EnvResolution error; one with a default silently falls
// back to it.
func resolveEnvTokens(raw string) (string, error) {
	var firstErr error
	result := envTokenPattern.ReplaceAllStringFunc(raw, func(token string) string {
		if firstErr != nil {
			return token
		}
		m := envTokenPattern.FindStringSubmatch(token)
		name, hasDefault, def := m[1], m[2] != "", m[3]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		firstErr = apperrors.Newf(apperrors.KindEnvResolution, "environment variable %q is not set and has no default", name)
		return token
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// normalizeActionSchema applies spec.md §4.6's schema normalization: a
// legacy parameters array becomes an object input_schema; an existing
// object-shaped input_schema is trusted; an object-shaped schema is
// promoted to input_schema.
func normalizeActionSchema(a *ActionConfig) {
	if a.InputSchema != nil {
		return
	}
	if a.Schema != nil {
		a.InputSchema = a.Schema
		return
	}
	if len(a.Parameters) == 0 {
		return
	}

	properties := make(map[string]any, len(a.Parameters))
	var required []string
	for _, p := range a.Parameters {
		prop := map[string]any{}
		if p.Type != "" {
			prop["type"] = p.Type
		} else {
			prop["type"] = "string"
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	a.InputSchema = schema
}
