package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/manifest"
	"github.com/aionixone/openact-sub001/pkg/registry"
)

func initActionCmds(root *cobra.Command) {
	root.AddCommand(actionImportCmd, actionExportCmd, actionListCmd)
}

var (
	actionImportFile     string
	actionImportStrategy string
	actionImportDryRun   bool
	actionImportValidate bool

	actionExportConnectors []string
	actionExportOut        string
	actionExportRedact     bool

	actionListConnector string
)

var actionImportCmd = &cobra.Command{
	Use:   "action-import",
	Short: "Import a manifest file's connectors/connections/actions into the registry",
	RunE:  actionImportCmdFunc,
}

var actionExportCmd = &cobra.Command{
	Use:   "action-export",
	Short: "Export the registry's latest connectors/connections/actions as a manifest",
	RunE:  actionExportCmdFunc,
}

var actionListCmd = &cobra.Command{
	Use:   "action-list",
	Short: "List the latest version of every action under a connector",
	RunE:  actionListCmdFunc,
}

func init() {
	addTenantFlag(actionImportCmd)
	actionImportCmd.Flags().StringVar(&actionImportFile, "file", "", "Path to a YAML or JSON manifest file (required)")
	actionImportCmd.Flags().StringVar(&actionImportStrategy, "strategy", string(registry.AlwaysBump),
		"Versioning strategy: always_bump, reuse_if_unchanged, or force_rollback_to_latest")
	actionImportCmd.Flags().BoolVar(&actionImportDryRun, "dry-run", false, "Report the plan without writing")
	actionImportCmd.Flags().BoolVar(&actionImportValidate, "validate", true, "Validate the manifest before importing")
	_ = actionImportCmd.MarkFlagRequired("file")

	addTenantFlag(actionExportCmd)
	actionExportCmd.Flags().StringSliceVar(&actionExportConnectors, "connector", nil, "Restrict export to these connectors (default: all)")
	actionExportCmd.Flags().StringVar(&actionExportOut, "out", "", "Write the manifest here instead of stdout")
	actionExportCmd.Flags().BoolVar(&actionExportRedact, "redact", true, "Redact sensitive-looking config leaves")

	addTenantFlag(actionListCmd)
	actionListCmd.Flags().StringVar(&actionListConnector, "connector", "", "Connector name (required)")
	_ = actionListCmd.MarkFlagRequired("connector")
}

func actionImportCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	tenant := resolveTenant(cmd, app)

	m, err := manifest.Load(actionImportFile)
	if err != nil {
		return emitErr(err)
	}

	result, err := app.Registry.Import(cmd.Context(), m, registry.ImportOptions{
		Tenant:   tenant,
		Strategy: registry.VersioningStrategy(actionImportStrategy),
		DryRun:   actionImportDryRun,
		Validate: actionImportValidate,
	})
	if err != nil {
		return emitErr(err)
	}

	return emit(result, func() {
		fmt.Printf("connections: +%d ~%d =%d  actions: +%d ~%d =%d  conflicts: %d\n",
			result.ConnectionsCreated, result.ConnectionsUpdated, result.ConnectionsReused,
			result.ActionsCreated, result.ActionsUpdated, result.ActionsReused, len(result.Conflicts))
		for _, c := range result.Conflicts {
			fmt.Printf("  conflict: %s %s/%s: %s\n", c.Kind, c.Connector, c.Name, c.Detail)
		}
	})
}

func actionExportCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	tenant := resolveTenant(cmd, app)

	m, err := app.Registry.Export(cmd.Context(), registry.ExportOptions{
		Tenant:     tenant,
		Connectors: actionExportConnectors,
		Redact:     actionExportRedact,
	})
	if err != nil {
		return emitErr(err)
	}

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return emitErr(apperrors.Wrap(apperrors.KindInternal, err, "marshaling manifest"))
	}

	if actionExportOut != "" {
		if err := os.WriteFile(actionExportOut, out, 0o644); err != nil {
			return emitErr(apperrors.Wrap(apperrors.KindInternal, err, "writing manifest file"))
		}
		return emit(map[string]any{"written_to": actionExportOut}, func() {
			fmt.Printf("wrote %s\n", actionExportOut)
		})
	}

	if jsonOnly {
		return emitJSON(apperrors.Envelope{OK: true, Data: m})
	}
	fmt.Println(string(out))
	return nil
}

func actionListCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	tenant := resolveTenant(cmd, app)

	actions, err := app.Actions.ListByConnector(cmd.Context(), tenant, actionListConnector)
	if err != nil {
		return emitErr(err)
	}

	return emit(actions, func() {
		if len(actions) == 0 {
			fmt.Println("no actions")
			return
		}
		for _, a := range actions {
			mcp := ""
			if a.MCPEnabled {
				mcp = " (mcp)"
			}
			fmt.Printf("%s%s\n", a.TRN, mcp)
		}
	})
}
