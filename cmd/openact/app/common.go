// Package app provides the entry point for the OpenAct command-line
// application.
package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/appwire"
)

// jsonOnly suppresses human-readable stdout output in favor of the
// {ok,error,data} envelope (spec.md §6: "--json-only suppresses human
// output to stdout, sends logs to stderr").
var jsonOnly bool

// resolveTenant returns the --tenant flag value, falling back to the
// bootstrapped app's configured default tenant.
func resolveTenant(cmd *cobra.Command, app *appwire.App) string {
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant != "" {
		return tenant
	}
	return app.Config.DefaultTenant()
}

// mustBootstrap assembles the shared component graph or fails the command
// with a wrapped Internal error.
func mustBootstrap() (*appwire.App, error) {
	app, err := appwire.Bootstrap()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "bootstrapping application")
	}
	return app, nil
}

// emit prints a successful result, either as the JSON envelope (--json-only)
// or via the caller-supplied human-readable printer.
func emit(data any, human func()) error {
	if jsonOnly {
		return emitJSON(apperrors.Envelope{OK: true, Data: data})
	}
	human()
	return nil
}

// emitErr converts err to the wire envelope (spec.md §7: "User-visible
// shape") and, under --json-only, writes it to stdout; otherwise it prints a
// one-line "error: <code>: <message>" to stderr. It returns err so RunE
// sets a non-zero exit code.
func emitErr(err error) error {
	env := apperrors.ToEnvelope(err)
	if jsonOnly {
		_ = emitJSON(env)
	} else {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", env.Error.Code, env.Error.Message)
	}
	return err
}

func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// addTenantFlag registers the --tenant flag shared by every subcommand
// that acts on tenant-scoped state.
func addTenantFlag(cmd *cobra.Command) {
	cmd.Flags().String("tenant", "", "Tenant to act on (default: OPENACT_DEFAULT_TENANT)")
}
