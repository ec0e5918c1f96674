package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether OpenAct can reach its database",
	RunE:  statusCmdFunc,
}

func statusCmdFunc(cmd *cobra.Command, _ []string) error {
	app, err := mustBootstrap()
	if err != nil {
		return emitErr(err)
	}
	defer app.DB.Close()

	if err := app.DB.PingContext(cmd.Context()); err != nil {
		return emitErr(err)
	}

	return emit(map[string]any{"database": "ok", "default_tenant": app.Config.DefaultTenant()}, func() {
		fmt.Println("database: ok")
		fmt.Printf("default tenant: %s\n", app.Config.DefaultTenant())
	})
}
