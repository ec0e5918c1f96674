package app

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/execengine"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

var (
	runActionTRN   string
	runConnector   string
	runAction      string
	runVersion     int64
	runBodyJSON    string
	runQuery       []string
	runHeaders     []string
	runPathParams  []string
	runAllPages    bool
	runMaxPages    int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute an action, resolving its bound credential and composing the HTTP request",
	RunE:  runCmdFunc,
}

func init() {
	addTenantFlag(runCmd)
	runCmd.Flags().StringVar(&runActionTRN, "action-trn", "", "Action TRN (pinned or unpinned)")
	runCmd.Flags().StringVar(&runConnector, "connector", "", "Connector name (with --action and --version, in place of --action-trn)")
	runCmd.Flags().StringVar(&runAction, "action", "", "Action name")
	runCmd.Flags().Int64Var(&runVersion, "version", 0, "Explicit action version (required when using --connector/--action)")
	runCmd.Flags().StringVar(&runBodyJSON, "body", "", "Request body, as a JSON document")
	runCmd.Flags().StringArrayVar(&runQuery, "query", nil, "Query parameter as key=value (repeatable)")
	runCmd.Flags().StringArrayVar(&runHeaders, "header", nil, "Header as key=value (repeatable)")
	runCmd.Flags().StringArrayVar(&runPathParams, "path-param", nil, "Path parameter as key=value (repeatable)")
	runCmd.Flags().BoolVar(&runAllPages, "all-pages", false, "Follow pagination to completion")
	runCmd.Flags().IntVar(&runMaxPages, "max-pages", 0, "Cap the number of pages fetched (0 = engine default)")
}

func runCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	tenant := resolveTenant(cmd, app)

	actionTRN, err := resolveRunActionTRN(tenant)
	if err != nil {
		return emitErr(err)
	}

	input, err := buildRunInput()
	if err != nil {
		return emitErr(err)
	}

	executionTRN := trn.New(tenant, trn.KindExecution, "cli", uuid.NewString()).Format()
	rec, err := app.Engine.RunActionByTRNWithInput(cmd.Context(), tenant, actionTRN, executionTRN, input)
	if err != nil {
		return emitErr(err)
	}

	return emit(rec, func() {
		fmt.Printf("execution: %s\nstatus: %s\n", rec.ExecutionTRN, rec.Status)
		if rec.StatusCode != nil {
			fmt.Printf("status_code: %d\n", *rec.StatusCode)
		}
		if rec.OutputData != nil {
			out, _ := json.MarshalIndent(rec.OutputData, "", "  ")
			fmt.Println(string(out))
		}
	})
}

func resolveRunActionTRN(tenant string) (string, error) {
	if runActionTRN != "" {
		return runActionTRN, nil
	}
	if runConnector == "" || runAction == "" {
		return "", apperrors.New(apperrors.KindInvalidArguments, "run requires --action-trn, or --connector and --action")
	}
	if runVersion <= 0 {
		return "", apperrors.New(apperrors.KindInvalidArguments,
			"run requires an explicit --version when resolving by connector/action; no implicit latest")
	}
	return trn.New(tenant, trn.KindAction, runConnector, runAction).WithVersion(runVersion).Format(), nil
}

func buildRunInput() (execengine.Input, error) {
	input := execengine.Input{}

	if runBodyJSON != "" {
		var body any
		if err := json.Unmarshal([]byte(runBodyJSON), &body); err != nil {
			return execengine.Input{}, apperrors.Wrap(apperrors.KindInvalidArguments, err, "parsing --body as JSON")
		}
		input.Body = body
	}

	if len(runQuery) > 0 {
		input.Query = map[string][]string{}
		for _, kv := range runQuery {
			k, v, err := splitKV(kv)
			if err != nil {
				return execengine.Input{}, err
			}
			input.Query[k] = append(input.Query[k], v)
		}
	}

	if len(runHeaders) > 0 {
		input.Headers = map[string][]string{}
		for _, kv := range runHeaders {
			k, v, err := splitKV(kv)
			if err != nil {
				return execengine.Input{}, err
			}
			input.Headers[k] = append(input.Headers[k], v)
		}
	}

	if len(runPathParams) > 0 {
		input.PathParams = map[string]string{}
		for _, kv := range runPathParams {
			k, v, err := splitKV(kv)
			if err != nil {
				return execengine.Input{}, err
			}
			input.PathParams[k] = v
		}
	}

	if runAllPages || runMaxPages > 0 {
		input.Pagination = &execengine.PaginationRequest{AllPages: runAllPages, MaxPages: runMaxPages}
	}

	return input, nil
}

func splitKV(kv string) (string, string, error) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], nil
		}
	}
	return "", "", apperrors.New(apperrors.KindInvalidArguments, "expected key=value, got "+kv)
}
