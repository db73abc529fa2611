package store

// Derived views over key_log. They are dropped and recreated every time the
// store is opened so their definitions always match this build; key_log
// itself is never touched.
//
// Rows are ordered by (time_utc, rowid). Bigrams and trigrams only use
// runs of single-key entries: a combo containing " + " breaks the run.

const keyCountsView = `
CREATE VIEW key_counts AS
WITH frequencies AS (
    SELECT key_code, count(*) AS count,
        (count(*) * 1.0) / (SELECT count(*) FROM key_log) AS frequency
    FROM key_log
    GROUP BY 1
)
SELECT *, SUM(frequency) OVER (
    ORDER BY count DESC, key_code ROWS UNBOUNDED PRECEDING
) AS cumulative_frequency
FROM frequencies
ORDER BY count DESC, key_code
`

const bigramCountsView = `
CREATE VIEW bigram_counts AS
WITH ordered AS (
    SELECT key_code AS k1,
        LEAD(key_code, 1) OVER (ORDER BY time_utc, rowid) AS k2
    FROM key_log
),
grams AS (
    SELECT k1 || k2 AS bigram
    FROM ordered
    WHERE k2 IS NOT NULL
        AND instr(k1, ' + ') = 0
        AND instr(k2, ' + ') = 0
),
frequencies AS (
    SELECT bigram, count(*) AS count,
        (count(*) * 1.0) / (SELECT count(*) FROM grams) AS frequency
    FROM grams
    GROUP BY 1
)
SELECT *, SUM(frequency) OVER (
    ORDER BY count DESC, bigram ROWS UNBOUNDED PRECEDING
) AS cumulative_frequency
FROM frequencies
ORDER BY cumulative_frequency, count DESC, bigram
`

const trigramCountsView = `
CREATE VIEW trigram_counts AS
WITH ordered AS (
    SELECT key_code AS k1,
        LEAD(key_code, 1) OVER (ORDER BY time_utc, rowid) AS k2,
        LEAD(key_code, 2) OVER (ORDER BY time_utc, rowid) AS k3
    FROM key_log
),
grams AS (
    SELECT k1 || k2 || k3 AS trigram
    FROM ordered
    WHERE k3 IS NOT NULL
        AND instr(k1, ' + ') = 0
        AND instr(k2, ' + ') = 0
        AND instr(k3, ' + ') = 0
),
frequencies AS (
    SELECT trigram, count(*) AS count,
        (count(*) * 1.0) / (SELECT count(*) FROM grams) AS frequency
    FROM grams
    GROUP BY 1
)
SELECT *, SUM(frequency) OVER (
    ORDER BY count DESC, trigram ROWS UNBOUNDED PRECEDING
) AS cumulative_frequency
FROM frequencies
ORDER BY cumulative_frequency, count DESC, trigram
`

var views = []struct {
	name View
	ddl  string
}{
	{ViewKeyCounts, keyCountsView},
	{ViewBigramCounts, bigramCountsView},
	{ViewTrigramCounts, trigramCountsView},
}
