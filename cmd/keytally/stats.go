package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"keytally/internal/stats"
	"keytally/internal/store"
)

var (
	statsLimit  int
	statsFile   string
	statsFormat string
)

var statsCmd = &cobra.Command{
	Use:   "stats [keys|bigrams|trigrams]",
	Short: "Show key, bigram or trigram frequencies",
	Long: `Reports how often each combo, or each sequence of two or three
single-key combos, occurs in the key log. Reads the SQLite views by
default, or a plain text key log with --file.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"keys", "bigrams", "trigrams"},
	RunE:      runStats,
}

func init() {
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 20, "number of rows to show (0 for all)")
	statsCmd.Flags().StringVarP(&statsFile, "file", "f", "", "read a plain text key log instead of the database")
	statsCmd.Flags().StringVar(&statsFormat, "format", "table", "output format (table, json)")
	rootCmd.AddCommand(statsCmd)
}

// statRow is one line of output, shared by all three views.
type statRow struct {
	Item                string  `json:"item"`
	Count               int64   `json:"count"`
	Frequency           float64 `json:"frequency"`
	CumulativeFrequency float64 `json:"cumulative_frequency"`
}

func runStats(cmd *cobra.Command, args []string) error {
	view := "keys"
	if len(args) == 1 {
		view = args[0]
	}

	var (
		rows []statRow
		err  error
	)
	if statsFile != "" {
		rows, err = statsFromFile(statsFile, view)
	} else {
		rows, err = statsFromStore(cmd, view)
	}
	if err != nil {
		return err
	}

	switch statsFormat {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "table":
		return renderStats(cmd.OutOrStdout(), view, rows)
	default:
		return fmt.Errorf("unknown format %q (valid: table, json)", statsFormat)
	}
}

func statsFromFile(path, view string) ([]statRow, error) {
	entries, err := stats.ReadLogFile(path)
	if err != nil {
		return nil, err
	}
	switch view {
	case "bigrams":
		return gramRows(stats.Bigrams(entries, statsLimit)), nil
	case "trigrams":
		return gramRows(stats.Trigrams(entries, statsLimit)), nil
	default:
		return keyRows(stats.Keys(entries, statsLimit)), nil
	}
}

func statsFromStore(cmd *cobra.Command, view string) ([]statRow, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.DatabasePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no key log at %s (run keytally init or keytally run first)", path)
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	ctx := cmd.Context()
	switch view {
	case "bigrams":
		grams, err := st.Bigrams(ctx, statsLimit)
		return gramRows(grams), err
	case "trigrams":
		grams, err := st.Trigrams(ctx, statsLimit)
		return gramRows(grams), err
	default:
		keys, err := st.KeyCounts(ctx, statsLimit)
		return keyRows(keys), err
	}
}

func keyRows(counts []store.KeyCount) []statRow {
	rows := make([]statRow, len(counts))
	for i, c := range counts {
		rows[i] = statRow{c.Combo, c.Count, c.Frequency, c.CumulativeFrequency}
	}
	return rows
}

func gramRows(counts []store.GramCount) []statRow {
	rows := make([]statRow, len(counts))
	for i, c := range counts {
		rows[i] = statRow{c.Gram, c.Count, c.Frequency, c.CumulativeFrequency}
	}
	return rows
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func renderStats(w io.Writer, view string, rows []statRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no entries")
		return err
	}

	label := "Combo"
	if view != "keys" {
		label = "Sequence"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("#", label, "Count", "Freq", "Cumulative").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1:
				return cellStyle
			default:
				return numberStyle
			}
		})

	for i, r := range rows {
		t.Row(
			strconv.Itoa(i+1),
			r.Item,
			strconv.FormatInt(r.Count, 10),
			percent(r.Frequency),
			percent(r.CumulativeFrequency),
		)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 2, 64) + "%"
}
