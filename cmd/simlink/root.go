package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hongjun500/simlink/pkg/logger"
)

var rootLogLevel string

var rootCmd = &cobra.Command{
	Use:   "simlink",
	Short: "Vehicle simulation controller bridge",
	Long:  "simlink runs a headless vehicle simulation and exposes each car to a remote controller over TCP or WebSocket.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("log-level") {
			logger.SetLevel(rootLogLevel)
		}
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(peekCmd)
	rootCmd.AddCommand(driveCmd)
	rootCmd.AddCommand(eventsCmd)
}
