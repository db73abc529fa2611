package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"keytally/internal/logging"
)

var crashesCmd = &cobra.Command{
	Use:   "crashes",
	Short: "List crash reports from earlier runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reports, err := logging.NewCrashHandler(cfg.CrashDir(), version, "", nil).CrashReports()
		if err != nil {
			return fmt.Errorf("read crash reports: %w", err)
		}
		if len(reports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no crash reports")
			return nil
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(borderStyle).
			Headers("Time", "Version", "Run", "Panic").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		for _, r := range reports {
			t.Row(r.Timestamp.Format("2006-01-02 15:04:05"), r.Version, r.RunID, r.PanicValue)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		fmt.Fprintf(cmd.OutOrStdout(), "Reports in %s\n", cfg.CrashDir())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(crashesCmd)
}
