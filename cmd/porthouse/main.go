package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aaltosatellite/porthouse/pkg/log"

	// Blank-imported so each module's init() registers its class with the
	// launcher registry (launcher.Register), matching the original's
	// dynamic import-by-class-name resolved statically here instead.
	_ "github.com/aaltosatellite/porthouse/pkg/rotator"
	_ "github.com/aaltosatellite/porthouse/pkg/router"
	_ "github.com/aaltosatellite/porthouse/pkg/scheduler"
	_ "github.com/aaltosatellite/porthouse/pkg/tracker"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "porthouse",
	Short:   "Porthouse - distributed ground-station and mission-control framework",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Porthouse version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(cmdlCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(packetsCmd)
	rootCmd.AddCommand(housekeepingCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
