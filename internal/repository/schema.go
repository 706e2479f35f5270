package repository

import (
	"fmt"

	pkgch "StockCast/pkg/clickhouse"
)

// Schema returns the idempotent DDL for the candle and forecast tables.
func Schema(cfg pkgch.ClientConfig) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, cfg.Database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            symbol    LowCardinality(String),
            timeframe LowCardinality(String),
            bucket    DateTime64(3, 'UTC'),
            open      Float64,
            high      Float64,
            low       Float64,
            close     Float64,
            volume    Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, timeframe, bucket)`, cfg.Database, cfg.CandleTable),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            forecast_id     String,
            symbol          LowCardinality(String),
            timeframe       LowCardinality(String),
            created_at      DateTime64(3, 'UTC'),
            anchor          DateTime64(3, 'UTC'),
            reference_price Float64,
            horizon         UInt32,
            window_size     UInt32,
            predictor       LowCardinality(String),
            backfilled      UInt32,
            partial         UInt8,
            error           String,
            step            UInt32,
            ts              DateTime64(3, 'UTC'),
            value           Float64,
            actual          Nullable(Float64)
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(created_at)
        ORDER BY (symbol, timeframe, created_at, forecast_id, step)
        TTL toDateTime(created_at) + INTERVAL 180 DAY`, cfg.Database, cfg.ForecastTable),
	}
}

func qualified(cfg pkgch.ClientConfig, table string) string {
	if cfg.Database == "" {
		return table
	}
	return cfg.Database + "." + table
}
