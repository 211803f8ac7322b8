// Package commands provides the eventctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mhismail3/tron-sub003/internal/logging"
)

var (
	dbPath    string
	printLogs bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "eventctl",
	Short: "Agent session core control tool",
	Long: `eventctl drives the agent session core from the command line:
start it as an HTTP server, or exercise the Event Store, Session
Linearizer, and Session Reconstructor directly against a local
database file.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.DefaultConfig()
		logCfg.Level = logging.ParseLevel(logLevel)
		logCfg.Output = os.Stderr
		if !printLogs {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "eventctl.db", "Path to the event store database file")
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(sessionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
