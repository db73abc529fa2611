package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"keytally/internal/config"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration after defaults and environment overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return config.Encode(cmd.OutOrStdout(), cfg, configFormat)
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file and list warnings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		warnings := config.Check(cfg).Warnings()
		for _, w := range warnings {
			fmt.Fprintf(out, "warning: %s: %s\n", w.Field, w.Message)
		}
		fmt.Fprintf(out, "%s: ok (%d warnings)\n", path, len(warnings))
		return nil
	},
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "output format (toml, json, yaml)")
	configCmd.AddCommand(configShowCmd, configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
