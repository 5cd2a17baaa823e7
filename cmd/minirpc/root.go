package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mini-rpc-core/config"
	"mini-rpc-core/internal/logging"
)

// Version is printed by the version command.
const Version = "0.3.0"

var (
	RootCmd = &cobra.Command{
		Use:   "minirpc",
		Short: "mini-rpc demo provider and consumer",
		Long: fmt.Sprintf(`minirpc (v%s)

Runs a calculator provider or calls one. Configuration is read from an
application.properties file; MINIRPC_RPC_<SECTION>_<KEY> environment variables
override it.`, Version),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			lvl, _ := cmd.Flags().GetString("log-level")
			return logging.SetLevel(lvl)
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of minirpc",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("minirpc v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(providerCmd)
	RootCmd.AddCommand(consumerCmd)
	RootCmd.AddCommand(versionCmd)

	RootCmd.PersistentFlags().String("config", config.DefaultPath, "path of the application.properties file")
	RootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
