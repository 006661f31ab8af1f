package clickhouse

import "fmt"

// CandleTimeframes lists the bucket widths with a candles table each.
var CandleTimeframes = []string{"1s", "1m", "5m"}

// CandlesTable returns the qualified table holding candles for tf.
func CandlesTable(database, prefix, tf string) string {
	return fmt.Sprintf("%s.%s_%s", database, prefix, tf)
}

// Schema returns idempotent DDL for the candles tables and the model
// artifact table.
func Schema(database, candlesPrefix, artifactTable string) []string {
	stmts := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)}
	for _, tf := range CandleTimeframes {
		stmts = append(stmts, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            bucket DateTime64(3),
            symbol LowCardinality(String),
            open   Float64,
            high   Float64,
            low    Float64,
            close  Float64,
            vol    Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, bucket)`, CandlesTable(database, candlesPrefix, tf)))
	}
	stmts = append(stmts, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            name       String,
            blob       String,
            updated_at DateTime64(3)
        ) ENGINE = ReplacingMergeTree(updated_at)
        ORDER BY name`, database, artifactTable))
	return stmts
}
