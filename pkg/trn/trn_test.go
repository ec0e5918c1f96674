package trn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

func TestParseFormatRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []string{
		"trn:openact:default:action/http/get-user@v1",
		"trn:openact:acme:connection/http/github",
		"trn:openact:acme:auth-connection/http/my-user",
		"trn:openact:acme:execution/http/run-1@v42",
	}
	for _, s := range cases {
		s := s
		t.Run(s, func(t *testing.T) {
			t.Parallel()
			parsed, err := trn.Parse(s)
			require.NoError(t, err)
			assert.Equal(t, s, parsed.Format())

			again, err := trn.Parse(parsed.Format())
			require.NoError(t, err)
			assert.Equal(t, parsed, again)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing scheme":     "openact:default:action/http/get-user",
		"too few fields":     "trn:openact:default",
		"empty tenant":       "trn:openact::action/http/get-user",
		"bad kind":           "trn:openact:default:widget/http/get-user",
		"empty connector":    "trn:openact:default:action//get-user",
		"empty name":         "trn:openact:default:action/http/",
		"bad version suffix": "trn:openact:default:action/http/get-user@vX",
		"zero version":       "trn:openact:default:action/http/get-user@v0",
		"invalid name chars": "trn:openact:default:action/http/get user",
	}
	for name, s := range cases {
		s := s
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := trn.Parse(s)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindInvalidArguments, apperrors.KindOf(err))
		})
	}
}

func TestVersionHelpers(t *testing.T) {
	t.Parallel()

	base := trn.New("default", trn.KindAction, "http", "get-user")
	assert.Nil(t, base.Version)
	assert.Equal(t, int64(7), base.VersionOr(7))

	v3 := base.WithVersion(3)
	assert.Equal(t, int64(3), *v3.Version)
	assert.Equal(t, "trn:openact:default:action/http/get-user@v3", v3.Format())

	latest := v3.WithoutVersion()
	assert.Nil(t, latest.Version)
}

func TestParseActionAndConnectionKindChecks(t *testing.T) {
	t.Parallel()

	_, err := trn.ParseAction("trn:openact:default:connection/http/github")
	require.Error(t, err)

	a, err := trn.ParseAction("trn:openact:default:action/http/get-user@v1")
	require.NoError(t, err)
	assert.Equal(t, trn.KindAction, a.Kind)

	c, err := trn.ParseConnection("trn:openact:default:connection/http/github")
	require.NoError(t, err)
	assert.Equal(t, trn.KindConnection, c.Kind)
}
