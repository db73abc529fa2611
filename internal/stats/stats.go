// Package stats computes key frequency tables in memory.
//
// The results match the key_counts, bigram_counts and trigram_counts views
// row for row, so a flat text log can be analysed the same way as the
// SQLite log.
package stats

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"keytally/internal/store"
	"keytally/internal/tracker"
)

type tally struct {
	key   string
	count int64
}

// count tallies keys and orders them by count descending, then key.
func count(keys []string) []tally {
	counts := make(map[string]int64)
	for _, k := range keys {
		counts[k]++
	}
	out := make([]tally, 0, len(counts))
	for k, n := range counts {
		out = append(out, tally{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func truncate(n, limit int) int {
	if limit > 0 && limit < n {
		return limit
	}
	return n
}

// Keys returns per-combo counts ordered by count descending, then combo.
// limit <= 0 returns all rows.
func Keys(entries []store.Entry, limit int) []store.KeyCount {
	combos := make([]string, len(entries))
	for i, e := range entries {
		combos[i] = e.Combo
	}
	total := float64(len(combos))

	tallies := count(combos)
	out := make([]store.KeyCount, 0, truncate(len(tallies), limit))
	cum := 0.0
	for _, t := range tallies[:truncate(len(tallies), limit)] {
		freq := float64(t.count) / total
		cum += freq
		out = append(out, store.KeyCount{
			Combo:               t.key,
			Count:               t.count,
			Frequency:           freq,
			CumulativeFrequency: cum,
		})
	}
	return out
}

// Bigrams returns adjacent pairs of single-key combos.
func Bigrams(entries []store.Entry, limit int) []store.GramCount {
	return Grams(entries, 2, limit)
}

// Trigrams returns adjacent triples of single-key combos.
func Trigrams(entries []store.Entry, limit int) []store.GramCount {
	return Grams(entries, 3, limit)
}

// Grams returns n-grams over entries in order. A window containing any
// multi-key combo is skipped. Frequencies are relative to the number of
// qualifying windows; rows are ordered by cumulative frequency, which
// accumulates by count descending, then gram.
func Grams(entries []store.Entry, n, limit int) []store.GramCount {
	var grams []string
	for i := 0; i+n <= len(entries); i++ {
		var b strings.Builder
		ok := true
		for _, e := range entries[i : i+n] {
			if tracker.IsMultiKey(e.Combo) {
				ok = false
				break
			}
			b.WriteString(e.Combo)
		}
		if ok {
			grams = append(grams, b.String())
		}
	}
	total := float64(len(grams))

	tallies := count(grams)
	out := make([]store.GramCount, 0, truncate(len(tallies), limit))
	cum := 0.0
	for _, t := range tallies[:truncate(len(tallies), limit)] {
		freq := float64(t.count) / total
		cum += freq
		out = append(out, store.GramCount{
			Gram:                t.key,
			Count:               t.count,
			Frequency:           freq,
			CumulativeFrequency: cum,
		})
	}
	return out
}

// ReadLog reads a flat text log with one combo per line. Entries have no
// timestamps; order is line order.
func ReadLog(r io.Reader) ([]store.Entry, error) {
	var out []store.Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		out = append(out, store.Entry{Combo: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read key log: %w", err)
	}
	return out, nil
}

// ReadLogFile reads a flat text log from path.
func ReadLogFile(path string) ([]store.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open key log: %w", err)
	}
	defer f.Close()
	return ReadLog(f)
}
