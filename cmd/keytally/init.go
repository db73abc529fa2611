package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"keytally/internal/config"
	"keytally/internal/store"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file and key log",
	Long: `Writes a default config file (unless one exists) and creates the
SQLite key log with its key_counts, bigram_counts and trigram_counts views.
Existing key log rows are kept.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file with the defaults")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	path := configFlag
	if path == "" {
		path = config.ConfigPath()
	}

	var (
		cfg     *config.Config
		created bool
		err     error
	)
	if initForce {
		cfg = config.DefaultConfig()
		if err := config.SaveConfig(cfg, path); err != nil {
			return err
		}
		created = true
	} else if cfg, created, err = config.LoadOrCreate(path); err != nil {
		return err
	}

	if created {
		fmt.Fprintf(out, "Wrote config:   %s\n", path)
	} else {
		fmt.Fprintf(out, "Using config:   %s\n", path)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if !cfg.Sinks.SQLiteEnabled {
		fmt.Fprintln(out, "SQLite sink disabled, no database created")
		return nil
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := store.ValidateSchema(st.DB()); err != nil {
		return err
	}
	status, err := store.GetMigrationStatus(st.DB())
	if err != nil {
		return err
	}
	n, err := st.Count(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Key log:        %s\n", st.Path())
	fmt.Fprintf(out, "Schema version: %d/%d\n", status.CurrentVersion, status.LatestVersion)
	fmt.Fprintf(out, "Entries:        %d\n", n)
	return nil
}
