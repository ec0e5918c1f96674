package manifest_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/manifest"
)

const sampleManifest = `
version: "1.0"
connectors:
  github:
    connections:
      default:
        config:
          base_url: "${GH_BASE_URL:https://api.github.com}"
          token: "${GH_TOKEN}"
    actions:
      list_repos:
        connection: default
        config:
          method: GET
          url: "/user/repos"
        parameters:
          - name: per_page
            type: integer
            required: false
      get_repo:
        connection: default
        config:
          method: GET
          url: "/repos/{owner}/{repo}"
        input_schema:
          type: object
          properties:
            owner: { type: string }
            repo: { type: string }
          required: [owner, repo]
`

func TestParseResolvesEnvTokensAndNormalizesSchema(t *testing.T) {
	t.Setenv("GH_TOKEN", "secret-token")

	m, err := manifest.Parse([]byte(sampleManifest), ".yaml")
	require.NoError(t, err)

	gh := m.Connectors["github"]
	require.NotNil(t, gh)
	assert.Equal(t, "https://api.github.com", gh.Connections["default"].Config["base_url"])
	assert.Equal(t, "secret-token", gh.Connections["default"].Config["token"])

	listRepos := gh.Actions["list_repos"]
	require.NotNil(t, listRepos.InputSchema)
	assert.Equal(t, "object", listRepos.InputSchema["type"])

	getRepo := gh.Actions["get_repo"]
	assert.Equal(t, "object", getRepo.InputSchema["type"])
}

func TestParseFailsOnUnresolvedEnvVarWithoutDefault(t *testing.T) {
	t.Setenv("GH_TOKEN", "")
	os.Unsetenv("GH_TOKEN")
	_, err := manifest.Parse([]byte(sampleManifest), ".yaml")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindEnvResolution, apperrors.KindOf(err))
}

func TestParseRejectsMissingConnectorsRoot(t *testing.T) {
	_, err := manifest.Parse([]byte("version: \"1.0\"\n"), ".yaml")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidArguments, apperrors.KindOf(err))
}

func TestValidateCatchesUnknownConnectionReference(t *testing.T) {
	t.Setenv("GH_TOKEN", "x")
	doc := `
version: "1.0"
connectors:
  github:
    connections:
      default: { config: {} }
    actions:
      broken:
        connection: does-not-exist
        config: {}
`
	m, err := manifest.Parse([]byte(doc), ".yaml")
	require.NoError(t, err)

	errs := manifest.Validate(m)
	require.Len(t, errs, 1)
	assert.Equal(t, "UnknownConnection", errs[0].Kind)
}

func TestValidateCatchesDuplicateConnectionNames(t *testing.T) {
	doc := `
version: "1.0"
connectors:
  github:
    connections:
      default: { config: { a: 1 } }
      default: { config: { a: 2 } }
`
	m, err := manifest.Parse([]byte(doc), ".yaml")
	require.NoError(t, err)

	errs := manifest.Validate(m)
	require.Len(t, errs, 1)
	assert.Equal(t, "DuplicateConnection", errs[0].Kind)
	assert.Equal(t, "default", errs[0].Name)
}

func TestValidateCatchesBadSchemaCompilation(t *testing.T) {
	doc := `
version: "1.0"
connectors:
  github:
    connections:
      default: { config: {} }
    actions:
      bad_schema:
        connection: default
        config: {}
        input_schema:
          type: "not-a-real-type"
          properties: "should be an object"
`
	m, err := manifest.Parse([]byte(doc), ".yaml")
	require.NoError(t, err)

	errs := manifest.Validate(m)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Kind == "SchemaCompilation" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateOrErrorWrapsList(t *testing.T) {
	t.Setenv("GH_TOKEN", "x")
	doc := `
version: "1.0"
connectors:
  github:
    connections:
      default: { config: {} }
    actions:
      broken: { connection: missing, config: {} }
`
	m, err := manifest.Parse([]byte(doc), ".yaml")
	require.NoError(t, err)

	err = manifest.ValidateOrError(m)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindSchemaValidation, apperrors.KindOf(err))
}
