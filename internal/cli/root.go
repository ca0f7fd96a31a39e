package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bolasblack/gowfp/internal/config"
	"github.com/bolasblack/gowfp/internal/engine"
)

var (
	// Version, Commit, and Date are set at build time via ldflags
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Global flags shared by every subcommand.
var (
	flagConfig   string
	flagSimulate bool
	flagLogLevel string
	flagLogJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "gowfp",
	Short: "gowfp - Scoped packet filters for the Windows Filtering Platform",
	Long: `gowfp installs packet filters written as short expressions, e.g.

  outbound and tcp and remoteaddr == 192.168.1.3-192.168.1.4 and tcp.dstport == 8123 and action == allow

into the Windows Filtering Platform, and removes every one of them when the
session ends, including on Ctrl+C.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, friendlyError(err))
		os.Exit(1)
	}
}

// GetRootCmd returns the root command for documentation generation.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// friendlyError adds the actionable hint for errors users can fix.
func friendlyError(err error) string {
	switch {
	case errors.Is(err, engine.ErrAccessDenied):
		return fmt.Sprintf("Error: %v\nRun gowfp from an elevated (Administrator) prompt.", err)
	case errors.Is(err, engine.ErrUnsupported):
		return fmt.Sprintf("Error: %v\nUse --simulate to try filters with the in-process engine.", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("gowfp version %s\ncommit: %s\ndate: %s\n", Version, Commit, Date))

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagConfig, "config", "c", config.DefaultFilename, "Configuration file")
	flags.BoolVar(&flagSimulate, "simulate", false, "Use the in-process engine instead of the native one")
	flags.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.BoolVar(&flagLogJSON, "log-json", false, "Emit JSON log lines")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(cleanupCmd)
}
