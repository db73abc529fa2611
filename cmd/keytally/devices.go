package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"keytally/internal/keystroke"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List keyboards that can be captured",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kbds, err := keystroke.Keyboards()
		if err != nil {
			return fmt.Errorf("list keyboards: %w", err)
		}
		if len(kbds) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no keyboards found")
			return nil
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(borderStyle).
			Headers("Device", "Name", "Phys").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		for _, k := range kbds {
			t.Row(k.Handler, k.Name, k.Phys)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
