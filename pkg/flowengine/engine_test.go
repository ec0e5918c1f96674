package flowengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/flowengine"
)

func TestLinearPassFlowFinishes(t *testing.T) {
	t.Parallel()
	flow := &flowengine.Flow{
		Name:  "linear",
		Start: "step1",
		States: map[string]*flowengine.State{
			"step1": {Name: "step1", Kind: flowengine.StatePass, Result: "hello", Next: "step2"},
			"step2": {Name: "step2", Kind: flowengine.StateSucceed, End: true},
		},
	}

	out := flowengine.New().RunUntilPauseOrEnd(flow, "", flowengine.Context{}, nil, 10)
	require.Equal(t, flowengine.OutcomeFinished, out.Kind)

	states, ok := out.FinalContext["states"].(map[string]any)
	require.True(t, ok)
	step1, ok := states["step1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello", step1["result"])
}

func TestChoiceDispatch(t *testing.T) {
	t.Parallel()
	flow := &flowengine.Flow{
		Name:  "choice",
		Start: "check",
		States: map[string]*flowengine.State{
			"check": {
				Name: "check", Kind: flowengine.StateChoice,
				Choices: []flowengine.Choice{
					{Variable: "input.code", Op: "present", Next: "good"},
				},
				DefaultNext: "bad",
			},
			"good": {Name: "good", Kind: flowengine.StateSucceed, End: true},
			"bad":  {Name: "bad", Kind: flowengine.StateFail, FailError: "NoCode", FailCause: "missing code"},
		},
	}

	out := flowengine.New().RunUntilPauseOrEnd(flow, "", flowengine.Context{"input": map[string]any{"code": "abc"}}, nil, 10)
	assert.Equal(t, flowengine.OutcomeFinished, out.Kind)

	out2 := flowengine.New().RunUntilPauseOrEnd(flow, "", flowengine.Context{}, nil, 10)
	require.Equal(t, flowengine.OutcomeError, out2.Kind)
	assert.Equal(t, flowengine.ErrTaskFailed, out2.Err.Kind)
}

func TestTaskSuspendsAsPending(t *testing.T) {
	t.Parallel()
	flow := &flowengine.Flow{
		Name:  "oauth",
		Start: "await",
		States: map[string]*flowengine.State{
			"await": {Name: "await", Kind: flowengine.StateTask, Resource: "oauth2.await_callback", End: true},
		},
	}
	handler := flowengine.TaskHandlerFunc(func(resource string, _ map[string]any, _ flowengine.Context) (any, error) {
		if resource == "oauth2.await_callback" {
			return nil, &flowengine.PendingError{Metadata: map[string]any{"state": "xyz"}}
		}
		return nil, nil
	})

	out := flowengine.New().RunUntilPauseOrEnd(flow, "", flowengine.Context{}, handler, 10)
	require.Equal(t, flowengine.OutcomePending, out.Kind)
	assert.Equal(t, "await", out.NextState)
	assert.Equal(t, "xyz", out.PendingMetadata["state"])
}

func TestResumeReentersPausedState(t *testing.T) {
	t.Parallel()
	flow := &flowengine.Flow{
		Name:  "oauth",
		Start: "await",
		States: map[string]*flowengine.State{
			"await": {Name: "await", Kind: flowengine.StateTask, Resource: "oauth2.await_callback", Next: "done"},
			"done":  {Name: "done", Kind: flowengine.StateSucceed, End: true},
		},
	}
	calls := 0
	handler := flowengine.TaskHandlerFunc(func(resource string, _ map[string]any, ctx flowengine.Context) (any, error) {
		calls++
		if ctx["code"] == nil {
			return nil, &flowengine.PendingError{Metadata: map[string]any{}}
		}
		return ctx["code"], nil
	})

	out := flowengine.New().RunUntilPauseOrEnd(flow, "", flowengine.Context{}, handler, 10)
	require.Equal(t, flowengine.OutcomePending, out.Kind)

	resumedCtx := out.PendingContext.Clone()
	resumedCtx["code"] = "abc123"
	out2 := flowengine.New().RunUntilPauseOrEnd(flow, out.NextState, resumedCtx, handler, 10)
	require.Equal(t, flowengine.OutcomeFinished, out2.Kind)
	assert.Equal(t, 2, calls)
}

func TestMaxStepsExceeded(t *testing.T) {
	t.Parallel()
	flow := &flowengine.Flow{
		Name:  "loop",
		Start: "a",
		States: map[string]*flowengine.State{
			"a": {Name: "a", Kind: flowengine.StatePass, Next: "b"},
			"b": {Name: "b", Kind: flowengine.StatePass, Next: "a"},
		},
	}
	out := flowengine.New().RunUntilPauseOrEnd(flow, "", flowengine.Context{}, nil, 5)
	require.Equal(t, flowengine.OutcomeError, out.Kind)
	assert.Equal(t, flowengine.ErrMaxStepsExceeded, out.Err.Kind)
}

func TestStateNotFound(t *testing.T) {
	t.Parallel()
	flow := &flowengine.Flow{Name: "empty", Start: "missing", States: map[string]*flowengine.State{}}
	out := flowengine.New().RunUntilPauseOrEnd(flow, "", flowengine.Context{}, nil, 10)
	require.Equal(t, flowengine.OutcomeError, out.Kind)
	assert.Equal(t, flowengine.ErrStateNotFound, out.Err.Kind)
}
