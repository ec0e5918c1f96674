package app

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aionixone/openact-sub001/pkg/logger"
)

// NewRootCmd creates a new root command for the OpenAct CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "openact",
		DisableAutoGenTag: true,
		Short:             "OpenAct manages connections, actions, and credentials, and runs actions on behalf of tenants",
		Long: `OpenAct is an action execution platform with integrated authentication
orchestration: it stores declarative connection/action definitions,
exchanges and refreshes OAuth2/PAT/API-key/Basic credentials against
third-party providers, binds credentials to actions, and invokes those
actions on behalf of tenants.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if viper.GetBool("debug") {
				_ = os.Setenv("OPENACT_DEBUG", "1")
			}
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOnly, "json-only", false, "Suppress human-readable output; emit the JSON result envelope and send logs to stderr")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(statusCmd)
	initAuthCmds(rootCmd)
	initBindingCmds(rootCmd)
	initActionCmds(rootCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(doctorCmd)

	rootCmd.SilenceUsage = true
	return rootCmd
}
