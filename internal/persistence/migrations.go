package persistence

import (
	"context"
	"fmt"
)

// migrations is an additive, ordered list in the style of the teacher's
// RunMigrations (internal/database/db.go): every statement is idempotent
// (IF NOT EXISTS / ADD COLUMN IF NOT EXISTS) so it is safe to re-run on
// every process start.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(5) NOT NULL,
		strategy_type VARCHAR(50) NOT NULL,
		leverage DECIMAL(10, 2) NOT NULL,
		entry_price DECIMAL(20, 8) NOT NULL,
		current_price DECIMAL(20, 8) NOT NULL,
		take_profit_price DECIMAL(20, 8) NOT NULL,
		stop_loss_price DECIMAL(20, 8) NOT NULL,
		confidence DECIMAL(5, 4) NOT NULL,
		expected_value DECIMAL(10, 4) NOT NULL DEFAULT 0,
		status VARCHAR(10) NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		closed_at TIMESTAMP,
		exit_price DECIMAL(20, 8),
		exit_reason TEXT,
		exit_label VARCHAR(30),
		result VARCHAR(10),
		pnl_amount DECIMAL(20, 8),
		pnl_percent DECIMAL(10, 4),
		experiment_id VARCHAR(50),
		variant VARCHAR(50),
		ab_group VARCHAR(20)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recommendations_symbol ON recommendations(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations(status)`,
	`CREATE INDEX IF NOT EXISTS idx_recommendations_created_at ON recommendations(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_recommendations_direction ON recommendations(symbol, direction, status)`,

	`CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		recommendation_id TEXT NOT NULL REFERENCES recommendations(id) ON DELETE CASCADE,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(5) NOT NULL,
		event_type VARCHAR(10) NOT NULL,
		intended_price DECIMAL(20, 8) NOT NULL,
		fill_price DECIMAL(20, 8) NOT NULL,
		fill_timestamp TIMESTAMP NOT NULL,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		slippage_bps DECIMAL(10, 4) NOT NULL DEFAULT 0,
		fee_bps DECIMAL(10, 4) NOT NULL DEFAULT 0,
		pnl_amount DECIMAL(20, 8),
		pnl_percent DECIMAL(10, 4),
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_recommendation ON executions(recommendation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_fill_timestamp ON executions(fill_timestamp)`,

	`CREATE TABLE IF NOT EXISTS decision_chains (
		chain_id TEXT PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(5) NOT NULL,
		source VARCHAR(10) NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finalized_at TIMESTAMP,
		final_decision VARCHAR(10) NOT NULL DEFAULT 'PENDING',
		decision_time_ms BIGINT,
		recommendation_id TEXT,
		execution_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_decision_chains_symbol ON decision_chains(symbol, started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_decision_chains_final_decision ON decision_chains(final_decision)`,

	`CREATE TABLE IF NOT EXISTS decision_steps (
		chain_id TEXT NOT NULL REFERENCES decision_chains(chain_id) ON DELETE CASCADE,
		index INT NOT NULL,
		stage VARCHAR(30) NOT NULL,
		decision VARCHAR(10) NOT NULL,
		reason TEXT NOT NULL,
		details JSONB,
		"timestamp" TIMESTAMP NOT NULL,
		PRIMARY KEY (chain_id, index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_decision_steps_stage ON decision_steps(stage)`,

	`CREATE TABLE IF NOT EXISTS monitoring_snapshots (
		id BIGSERIAL PRIMARY KEY,
		recommendation_id TEXT NOT NULL,
		symbol TEXT NOT NULL DEFAULT '',
		check_time TIMESTAMP NOT NULL,
		current_price DECIMAL(20, 8) NOT NULL,
		reason TEXT NOT NULL,
		stage VARCHAR(30) NOT NULL,
		source VARCHAR(10) NOT NULL,
		detail JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_monitoring_snapshots_recommendation ON monitoring_snapshots(recommendation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_monitoring_snapshots_check_time ON monitoring_snapshots(check_time DESC)`,
	`ALTER TABLE monitoring_snapshots ADD COLUMN IF NOT EXISTS symbol TEXT NOT NULL DEFAULT ''`,
	`CREATE INDEX IF NOT EXISTS idx_monitoring_snapshots_symbol ON monitoring_snapshots(symbol)`,

	`CREATE TABLE IF NOT EXISTS slippage_analysis (
		id BIGSERIAL PRIMARY KEY,
		execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(5) NOT NULL,
		event_type VARCHAR(10) NOT NULL,
		slippage_bps DECIMAL(10, 4) NOT NULL,
		bucket VARCHAR(20) NOT NULL,
		recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slippage_analysis_symbol ON slippage_analysis(symbol, recorded_at DESC)`,

	`CREATE TABLE IF NOT EXISTS slippage_statistics (
		symbol VARCHAR(20) NOT NULL,
		bucket VARCHAR(20) NOT NULL,
		sample_count INT NOT NULL DEFAULT 0,
		mean_bps DECIMAL(10, 4) NOT NULL DEFAULT 0,
		p50_bps DECIMAL(10, 4) NOT NULL DEFAULT 0,
		p95_bps DECIMAL(10, 4) NOT NULL DEFAULT 0,
		p99_bps DECIMAL(10, 4) NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (symbol, bucket)
	)`,

	`CREATE TABLE IF NOT EXISTS slippage_thresholds (
		symbol VARCHAR(20) PRIMARY KEY,
		max_bps DECIMAL(10, 4) NOT NULL,
		last_adjusted_at TIMESTAMP NOT NULL DEFAULT NOW(),
		adjustment_reason TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS slippage_alerts (
		id BIGSERIAL PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		execution_id TEXT NOT NULL,
		observed_bps DECIMAL(10, 4) NOT NULL,
		threshold_bps DECIMAL(10, 4) NOT NULL,
		triggered_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slippage_alerts_symbol ON slippage_alerts(symbol, triggered_at DESC)`,

	`CREATE TABLE IF NOT EXISTS system_events (
		id BIGSERIAL PRIMARY KEY,
		event_type VARCHAR(50) NOT NULL,
		source VARCHAR(100),
		message TEXT,
		data JSONB,
		"timestamp" TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_system_events_type ON system_events(event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_system_events_timestamp ON system_events(timestamp)`,

	`ALTER TABLE recommendations ADD COLUMN IF NOT EXISTS agreement DECIMAL(5, 4)`,
	`ALTER TABLE recommendations ADD COLUMN IF NOT EXISTS dominant_direction VARCHAR(5)`,
	`ALTER TABLE recommendations ADD COLUMN IF NOT EXISTS expected_value DECIMAL(10, 4) NOT NULL DEFAULT 0`,

	// slippage_summary holds the single current rolling snapshot per symbol
	// (avg/median/p95 plus a bps-range histogram), distinct from
	// slippage_statistics above which buckets by time window.
	`CREATE TABLE IF NOT EXISTS slippage_summary (
		symbol VARCHAR(20) PRIMARY KEY,
		sample_count BIGINT NOT NULL DEFAULT 0,
		avg_bps DECIMAL(10, 4) NOT NULL DEFAULT 0,
		median_bps DECIMAL(10, 4) NOT NULL DEFAULT 0,
		p95_bps DECIMAL(10, 4) NOT NULL DEFAULT 0,
		buckets JSONB,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,

	`ALTER TABLE slippage_thresholds ADD COLUMN IF NOT EXISTS k_sigma DECIMAL(10, 4) NOT NULL DEFAULT 3`,
	`ALTER TABLE slippage_alerts ADD COLUMN IF NOT EXISTS severity VARCHAR(10) NOT NULL DEFAULT 'WARNING'`,
	`ALTER TABLE slippage_alerts ADD COLUMN IF NOT EXISTS message TEXT`,

	`CREATE TABLE IF NOT EXISTS recommendation_events (
		id BIGSERIAL PRIMARY KEY,
		recommendation_id TEXT NOT NULL REFERENCES recommendations(id) ON DELETE CASCADE,
		event_type VARCHAR(10) NOT NULL,
		exit_label VARCHAR(30),
		price DECIMAL(20, 8) NOT NULL,
		reason TEXT,
		"timestamp" TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recommendation_events_recommendation ON recommendation_events(recommendation_id, "timestamp")`,
}

// RunMigrations applies every migration statement in order. Safe to call on
// every startup; statements are idempotent.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Info().Int("count", len(migrations)).Msg("running database migrations")

	for i, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.log.Info().Msg("database migrations completed")
	return nil
}
