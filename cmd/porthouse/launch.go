package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aaltosatellite/porthouse/pkg/launcher"
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Start the modules named in a launch spec",
	Long: `launch parses a launch spec YAML file and starts one process per
surviving module (after --include/--exclude filtering), supervising them
until one exits or the process receives an interrupt.`,
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().String("cfg", "", "path to the launch spec YAML file (required)")
	launchCmd.Flags().String("include", "", "comma-separated substrings; only modules whose name contains one are started")
	launchCmd.Flags().String("exclude", "", "comma-separated substrings; modules whose name contains one are skipped")
	launchCmd.Flags().Bool("declare_exchanges", false, "delete and redeclare every exchange in the spec, then exit")
	launchCmd.Flags().BoolP("debug", "d", false, "force debug mode on every started module")

	// --only is how a supervised child re-invokes itself to run exactly one
	// module; it is not meant for interactive use.
	launchCmd.Flags().String("only", "")
	_ = launchCmd.Flags().MarkHidden("only")

	_ = launchCmd.MarkFlagRequired("cfg")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runLaunch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("cfg")
	includes := splitCSV(mustGetString(cmd, "include"))
	excludes := splitCSV(mustGetString(cmd, "exclude"))
	declareOnly, _ := cmd.Flags().GetBool("declare_exchanges")
	debug, _ := cmd.Flags().GetBool("debug")
	only, _ := cmd.Flags().GetString("only")

	l, err := launcher.New(cfgFile)
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}

	if declareOnly {
		return l.DeclareExchanges()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if only != "" {
		return l.RunOnly(ctx, only, debug)
	}
	return l.RunSupervised(ctx, includes, excludes, debug)
}

func mustGetString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
