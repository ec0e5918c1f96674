package toolproto_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/toolproto"
)

func TestGovernanceAllowedDenyWinsOverAllow(t *testing.T) {
	t.Parallel()
	gov := toolproto.NewGovernance(toolproto.GovernanceConfig{
		AllowPatterns: []string{"github.*"},
		DenyPatterns:  []string{"github.delete_*"},
	})
	assert.True(t, gov.Allowed("github.list_repos"))
	assert.False(t, gov.Allowed("github.delete_repo"))
	assert.False(t, gov.Allowed("slack.post_message"))
}

func TestGovernanceEmptyAllowListAllowsEverythingNotDenied(t *testing.T) {
	t.Parallel()
	gov := toolproto.NewGovernance(toolproto.GovernanceConfig{DenyPatterns: []string{"danger.*"}})
	assert.True(t, gov.Allowed("github.list_repos"))
	assert.False(t, gov.Allowed("danger.delete_all"))
}

func TestGovernanceAcquireBoundsConcurrency(t *testing.T) {
	t.Parallel()
	gov := toolproto.NewGovernance(toolproto.GovernanceConfig{MaxConcurrency: 1})

	_, release1, err := gov.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = gov.Acquire(ctx)
	require.Error(t, err)

	release1()

	_, release2, err := gov.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}
