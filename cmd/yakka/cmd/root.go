package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KieranHarper/Yakka/pkg/logger"
)

var (
	// Global flags
	verboseFlag bool
	logFileFlag string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "yakka",
	Short: "yakka runs workloads of cooperating tasks.",
	Long: `yakka is a command-line harness for the Yakka task engine. It executes
YAML-defined workloads of simulated tasks through a concurrency-limited
line, with live progress and a per-task outcome report.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logOpts := logger.DefaultOptions()
		if verboseFlag {
			logOpts.ConsoleLevel = logger.DebugLevel
		}
		if logFileFlag != "" {
			logOpts.FileOutput = true
			logOpts.LogFilePath = logFileFlag
		}
		logger.Init(logOpts)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Also write logs to this file (rotating JSON)")
}
