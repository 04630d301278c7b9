package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "screenlock",
	Short: "Report session lock and unlock events",
	Long: `screenlock watches whether the interactive session is locked and reports
every change exactly once, on the console and optionally to websocket clients.`,
	SilenceUsage: true,
	RunE:         runWatch,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the session lock state until interrupted",
	RunE:  runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "screenlock %s %s/%s\n", version, runtime.GOOS, runtime.GOARCH)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/screenlock/config.yaml)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}
