package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initBindingCmds(root *cobra.Command) {
	root.AddCommand(bindingBindCmd, bindingUnbindCmd, bindingListCmd)
}

var (
	bindingAuthTRN   string
	bindingActionTRN string
	bindingCreatedBy string
)

var bindingBindCmd = &cobra.Command{
	Use:   "binding-bind",
	Short: "Bind an auth connection to an action",
	RunE:  bindingBindCmdFunc,
}

var bindingUnbindCmd = &cobra.Command{
	Use:   "binding-unbind",
	Short: "Remove a binding between an auth connection and an action",
	RunE:  bindingUnbindCmdFunc,
}

var bindingListCmd = &cobra.Command{
	Use:   "binding-list",
	Short: "List bindings for a tenant, optionally filtered by auth or action",
	RunE:  bindingListCmdFunc,
}

func init() {
	addTenantFlag(bindingBindCmd)
	bindingBindCmd.Flags().StringVar(&bindingAuthTRN, "auth-trn", "", "Auth connection TRN (required)")
	bindingBindCmd.Flags().StringVar(&bindingActionTRN, "action-trn", "", "Action TRN (required)")
	bindingBindCmd.Flags().StringVar(&bindingCreatedBy, "created-by", "", "Optional attribution for the binding")
	_ = bindingBindCmd.MarkFlagRequired("auth-trn")
	_ = bindingBindCmd.MarkFlagRequired("action-trn")

	addTenantFlag(bindingUnbindCmd)
	bindingUnbindCmd.Flags().StringVar(&bindingAuthTRN, "auth-trn", "", "Auth connection TRN (required)")
	bindingUnbindCmd.Flags().StringVar(&bindingActionTRN, "action-trn", "", "Action TRN (required)")
	_ = bindingUnbindCmd.MarkFlagRequired("auth-trn")
	_ = bindingUnbindCmd.MarkFlagRequired("action-trn")

	addTenantFlag(bindingListCmd)
	bindingListCmd.Flags().StringVar(&bindingAuthTRN, "auth-trn", "", "Restrict to this auth connection TRN")
	bindingListCmd.Flags().StringVar(&bindingActionTRN, "action-trn", "", "Restrict to this action TRN")
}

func bindingBindCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	tenant := resolveTenant(cmd, app)

	if err := app.BindingManager.Bind(cmd.Context(), tenant, bindingAuthTRN, bindingActionTRN, bindingCreatedBy); err != nil {
		return emitErr(err)
	}

	return emit(map[string]any{"bound": true}, func() {
		fmt.Printf("bound %s -> %s\n", bindingAuthTRN, bindingActionTRN)
	})
}

func bindingUnbindCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	tenant := resolveTenant(cmd, app)

	removed, err := app.BindingManager.Unbind(cmd.Context(), tenant, bindingAuthTRN, bindingActionTRN)
	if err != nil {
		return emitErr(err)
	}

	return emit(map[string]any{"removed": removed}, func() {
		if removed {
			fmt.Println("unbound")
		} else {
			fmt.Println("no such binding")
		}
	})
}

func bindingListCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()
	tenant := resolveTenant(cmd, app)

	var authFilter, actionFilter *string
	if bindingAuthTRN != "" {
		authFilter = &bindingAuthTRN
	}
	if bindingActionTRN != "" {
		actionFilter = &bindingActionTRN
	}

	bindings, err := app.BindingManager.ListByTenant(cmd.Context(), tenant, authFilter, actionFilter)
	if err != nil {
		return emitErr(err)
	}

	return emit(bindings, func() {
		if len(bindings) == 0 {
			fmt.Println("no bindings")
			return
		}
		for _, b := range bindings {
			fmt.Printf("%s\t%s\t%s\n", b.AuthTRN, b.ActionTRN, b.CreatedAt)
		}
	})
}
