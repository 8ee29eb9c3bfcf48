// Package cli provides the command-line interface for the record server.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevemurr/simple-record-server/config"
)

// Version is set at build time.
var Version = "dev"

// Global flags
var (
	configPath string
	dataFile   string
	backend    string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordserver",
		Short: "Serve named record collections over HTTP from one JSON document",
		Long: `recordserver exposes create, read, update, soft-delete and restore
operations over named collections of records. Every collection lives in a
single document on disk which is rewritten after each change.

Running recordserver without a subcommand is the same as "recordserver serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&dataFile, "data", "", "Path of the backing document (default ./store.json, $DATA_FILE)")
	cmd.PersistentFlags().StringVar(&backend, "backend", "", "Store backend: json, sqlite or memory ($STORE_BACKEND)")
	addServeFlags(cmd)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCollectionsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig layers explicitly set flags over config.Load.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.DataFile = dataFile
	}
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Lookup("host") != nil && flags.Changed("host") {
		cfg.Host = serveHost
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Port = servePort
	}
	if flags.Lookup("watch") != nil && flags.Changed("watch") {
		cfg.Watch = serveWatch
	}
	if flags.Lookup("log-level") != nil && flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
