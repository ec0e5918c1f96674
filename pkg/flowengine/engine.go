package flowengine

import (
	"errors"
	"fmt"
	"strings"
)

// Engine interprets Flows. It holds no per-run state of its own — each
// invocation of RunUntilPauseOrEnd gets its own Context copy, so the
// engine is safe to share across concurrent, unrelated flow executions
// (spec.md §5: "the flow engine is not shared across executions").
type Engine struct{}

// New constructs an Engine.
func New() *Engine { return &Engine{} }

// RunUntilPauseOrEnd interprets flow starting at startState with the given
// context, dispatching Task states to handler, until a terminal state, a
// suspension request, or maxSteps is exceeded.
func (e *Engine) RunUntilPauseOrEnd(flow *Flow, startState string, ctx Context, handler TaskHandler, maxSteps int) Outcome {
	if flow == nil {
		return Outcome{Kind: OutcomeError, Err: &EngineError{Kind: ErrFlowNotFound}}
	}
	current := startState
	if current == "" {
		current = flow.Start
	}
	working := ctx.Clone()

	steps := 0
	for {
		if maxSteps > 0 && steps >= maxSteps {
			return Outcome{Kind: OutcomeError, Err: &EngineError{Kind: ErrMaxStepsExceeded, State: current}}
		}
		steps++

		state, ok := flow.States[current]
		if !ok {
			return Outcome{Kind: OutcomeError, Err: &EngineError{Kind: ErrStateNotFound, State: current}}
		}

		next, outcome, done := e.step(flow, state, working, handler)
		if done {
			return outcome
		}
		current = next
	}
}

// step executes one state and returns either the next state name to
// transition to, or a terminal/suspending Outcome (done=true).
func (e *Engine) step(flow *Flow, state *State, ctx Context, handler TaskHandler) (next string, outcome Outcome, done bool) {
	switch state.Kind {
	case StateSucceed:
		return "", Outcome{Kind: OutcomeFinished, FinalContext: ctx}, true

	case StateFail:
		return "", Outcome{Kind: OutcomeError, Err: &EngineError{
			Kind:  ErrTaskFailed,
			State: state.Name,
			Cause: fmt.Errorf("%s: %s", state.FailError, state.FailCause),
		}}, true

	case StatePass:
		mergeResult(ctx, state.Name, state.Result)
		return e.terminalOrNext(state, ctx)

	case StateTask:
		if handler == nil {
			return "", Outcome{Kind: OutcomeError, Err: &EngineError{Kind: ErrTaskFailed, State: state.Name,
				Cause: errors.New("no task handler configured")}}, true
		}
		result, err := handler.Execute(state.Resource, state.Parameters, ctx)
		if err != nil {
			var pend *PendingError
			if errors.As(err, &pend) {
				meta := pend.Metadata
				if meta == nil {
					meta = map[string]any{}
				}
				return "", Outcome{
					Kind:            OutcomePending,
					NextState:       state.Name,
					PendingContext:  ctx,
					PendingMetadata: meta,
				}, true
			}
			return "", Outcome{Kind: OutcomeError, Err: &EngineError{Kind: ErrTaskFailed, State: state.Name, Cause: err}}, true
		}
		mergeResult(ctx, state.Name, result)
		return e.terminalOrNext(state, ctx)

	case StateChoice:
		for _, c := range state.Choices {
			if evaluateChoice(c, ctx) {
				return c.Next, Outcome{}, false
			}
		}
		if state.DefaultNext != "" {
			return state.DefaultNext, Outcome{}, false
		}
		return "", Outcome{Kind: OutcomeError, Err: &EngineError{
			Kind: ErrBadContext, State: state.Name, Cause: errors.New("no Choice matched and no default_next configured"),
		}}, true

	case StateWait:
		// Modeled as an immediate transition: real wall-clock delay is the
		// caller's responsibility (the engine never blocks its own
		// goroutine on a timer — see spec.md §5 suspension points).
		return e.terminalOrNext(state, ctx)

	case StateParallel:
		results := make([]any, 0, len(state.Branches))
		for _, branch := range state.Branches {
			sub := e.RunUntilPauseOrEnd(branch, "", ctx.Clone(), handler, 0)
			if sub.Kind != OutcomeFinished {
				return "", sub, true
			}
			results = append(results, map[string]any(sub.FinalContext))
		}
		mergeResult(ctx, state.Name, results)
		return e.terminalOrNext(state, ctx)

	case StateMap:
		items := lookupPath(ctx, state.ItemsPath)
		arr, ok := items.([]any)
		if !ok {
			return "", Outcome{Kind: OutcomeError, Err: &EngineError{
				Kind: ErrBadContext, State: state.Name, Cause: fmt.Errorf("items path %q is not an array", state.ItemsPath),
			}}, true
		}
		if len(state.Branches) != 1 {
			return "", Outcome{Kind: OutcomeError, Err: &EngineError{
				Kind: ErrBadContext, State: state.Name, Cause: errors.New("Map state requires exactly one branch template"),
			}}, true
		}
		results := make([]any, 0, len(arr))
		for _, item := range arr {
			itemCtx := ctx.Clone()
			itemCtx["item"] = item
			sub := e.RunUntilPauseOrEnd(state.Branches[0], "", itemCtx, handler, 0)
			if sub.Kind != OutcomeFinished {
				return "", sub, true
			}
			results = append(results, map[string]any(sub.FinalContext))
		}
		mergeResult(ctx, state.Name, results)
		return e.terminalOrNext(state, ctx)

	default:
		return "", Outcome{Kind: OutcomeError, Err: &EngineError{
			Kind: ErrBadContext, State: state.Name, Cause: fmt.Errorf("unknown state kind %q", state.Kind),
		}}, true
	}
}

func (e *Engine) terminalOrNext(state *State, ctx Context) (string, Outcome, bool) {
	if state.End || state.Next == "" {
		return "", Outcome{Kind: OutcomeFinished, FinalContext: ctx}, true
	}
	return state.Next, Outcome{}, false
}

// mergeResult writes result into ctx at states.<name>.result, per spec.md
// §4.4's task-result merge rule.
func mergeResult(ctx Context, stateName string, result any) {
	statesNode, _ := ctx["states"].(map[string]any)
	if statesNode == nil {
		statesNode = map[string]any{}
		ctx["states"] = statesNode
	}
	statesNode[stateName] = map[string]any{"result": result}
}

// lookupPath resolves a dotted path ("a.b.c") against ctx.
func lookupPath(ctx Context, path string) any {
	if path == "" {
		return nil
	}
	var cur any = map[string]any(ctx)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func evaluateChoice(c Choice, ctx Context) bool {
	val := lookupPath(ctx, c.Variable)
	switch c.Op {
	case "present":
		return val != nil
	case "equals":
		return val == c.Value
	case "not_equals":
		return val != c.Value
	default:
		return false
	}
}
