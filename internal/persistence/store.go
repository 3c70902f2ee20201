package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// Store is the persistence contract the rest of the system depends on.
// Keeping it as an interface (grounded on the teacher's Repository, but
// abstracted) lets the tracker/gating/statistics packages run against
// memstore in tests without a live database.
type Store interface {
	SaveRecommendation(ctx context.Context, r *model.Recommendation) error
	UpdateRecommendation(ctx context.Context, r *model.Recommendation) error
	GetRecommendation(ctx context.Context, id string) (*model.Recommendation, error)
	ListActiveRecommendations(ctx context.Context, symbol string) ([]*model.Recommendation, error)
	ListRecommendationHistory(ctx context.Context, symbol string, limit, offset int) ([]*model.Recommendation, error)
	// ListRecentRecommendations returns every recommendation for symbol
	// created at or after since, active or closed, newest first. Gating's
	// cooldown and duplicate-suppression rules read from this rather than
	// any in-process cache, per spec §4.4's tie-break rule.
	ListRecentRecommendations(ctx context.Context, symbol string, since time.Time) ([]*model.Recommendation, error)

	SaveExecution(ctx context.Context, e *model.Execution) error
	ListExecutions(ctx context.Context, recommendationID string) ([]*model.Execution, error)
	ListExecutionsFiltered(ctx context.Context, f model.ExecutionFilter) ([]*model.Execution, error)

	// ListRecommendations supports the filtered/paginated list surfaced by
	// the API (symbol, strategy, status, result, direction, experiment,
	// time window, include_active), ordered newest first.
	ListRecommendations(ctx context.Context, f model.RecommendationFilter) ([]*model.Recommendation, error)
	// DeleteRecommendation removes a single recommendation and its
	// executions; it refuses to delete an ACTIVE recommendation (spec
	// §4.1 "Delete — CLOSED/EXPIRED only").
	DeleteRecommendation(ctx context.Context, id string) error
	// TrimHistory deletes all but the most recent keep CLOSED/EXPIRED
	// recommendations per symbol, returning the number removed (spec
	// §4.1 "Trim — keep the most recent N, default trim_keep_default").
	TrimHistory(ctx context.Context, symbol string, keep int) (int, error)

	SaveDecisionChain(ctx context.Context, c *model.DecisionChain) error
	AppendDecisionStep(ctx context.Context, chainID string, step model.DecisionStep) error
	FinalizeDecisionChain(ctx context.Context, c *model.DecisionChain) error
	GetDecisionChain(ctx context.Context, chainID string) (*model.DecisionChain, error)
	// ListDecisionChains supports the filtered/paginated chain query (spec
	// §4.3), ordered newest-first by (started_at, chain_id).
	ListDecisionChains(ctx context.Context, f model.DecisionChainFilter) ([]*model.DecisionChain, error)

	// SaveRecommendationEvent appends a row to a recommendation's lifecycle
	// audit trail (spec SPEC_FULL.md "Lifecycle event log").
	SaveRecommendationEvent(ctx context.Context, e *model.RecommendationEvent) error
	// ListRecommendationEvents returns a recommendation's lifecycle events
	// oldest first.
	ListRecommendationEvents(ctx context.Context, recommendationID string) ([]*model.RecommendationEvent, error)

	SaveMonitoringSnapshot(ctx context.Context, s *model.GatingSnapshot) error
	// ListMonitoringSnapshots supports the gated-monitoring listing
	// endpoint (spec §6), newest first, optionally scoped to symbol.
	ListMonitoringSnapshots(ctx context.Context, symbol string, limit, offset int) ([]*model.GatingSnapshot, error)

	SaveSlippageRecord(ctx context.Context, rec model.SlippageRecord) error
	ListSlippageRecords(ctx context.Context, symbol string, since time.Time) ([]model.SlippageRecord, error)
	SaveSlippageStatistics(ctx context.Context, stats model.SlippageStatistics) error
	GetSlippageStatistics(ctx context.Context, symbol string) (*model.SlippageStatistics, error)
	SaveSlippageThreshold(ctx context.Context, th model.SlippageThreshold) error
	GetSlippageThreshold(ctx context.Context, symbol string) (*model.SlippageThreshold, error)
	SaveSlippageAlert(ctx context.Context, alert model.SlippageAlert) error
	ListSlippageAlerts(ctx context.Context, symbol string, limit int) ([]model.SlippageAlert, error)

	HealthCheck(ctx context.Context) error
}

// Repository is the pgx-backed Store implementation, grounded on the
// teacher's internal/database/repository.go (QueryRow/Scan idiom, small
// query-then-scan helper per entity).
type Repository struct {
	db *DB
}

// NewRepository wraps a connected DB in the Store contract.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Recommendations
// ---------------------------------------------------------------------------

func (r *Repository) SaveRecommendation(ctx context.Context, rec *model.Recommendation) error {
	query := `
		INSERT INTO recommendations (
			id, symbol, direction, strategy_type, leverage, entry_price, current_price,
			take_profit_price, stop_loss_price, confidence, expected_value, status, created_at,
			experiment_id, variant, ab_group, agreement, dominant_direction
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		rec.ID, rec.Symbol, rec.Direction, rec.StrategyType, rec.Leverage, rec.EntryPrice,
		rec.CurrentPrice, rec.TakeProfitPrice, rec.StopLossPrice, rec.Confidence, rec.ExpectedValue, rec.Status,
		rec.CreatedAt, nullableString(rec.ExperimentID), nullableString(rec.Variant),
		nullableString(rec.ABGroup), nullableFloat(rec.Agreement), nullableDirection(rec.DominantDirection),
	)
	return err
}

func (r *Repository) UpdateRecommendation(ctx context.Context, rec *model.Recommendation) error {
	query := `
		UPDATE recommendations SET
			current_price = $2, status = $3, closed_at = $4, exit_price = $5,
			exit_reason = $6, exit_label = $7, result = $8, pnl_amount = $9, pnl_percent = $10
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query,
		rec.ID, rec.CurrentPrice, rec.Status, rec.ClosedAt, rec.ExitPrice,
		rec.ExitReason, rec.ExitLabel, rec.Result, rec.PnLAmount, rec.PnLPercent,
	)
	return err
}

const recommendationColumns = `
	id, symbol, direction, strategy_type, leverage, entry_price, current_price,
	take_profit_price, stop_loss_price, confidence, expected_value, status, created_at, closed_at,
	exit_price, exit_reason, exit_label, result, pnl_amount, pnl_percent,
	experiment_id, variant, ab_group
`

func scanRecommendation(row pgx.Row) (*model.Recommendation, error) {
	rec := &model.Recommendation{}
	var experimentID, variant, abGroup *string
	err := row.Scan(
		&rec.ID, &rec.Symbol, &rec.Direction, &rec.StrategyType, &rec.Leverage, &rec.EntryPrice,
		&rec.CurrentPrice, &rec.TakeProfitPrice, &rec.StopLossPrice, &rec.Confidence, &rec.ExpectedValue, &rec.Status,
		&rec.CreatedAt, &rec.ClosedAt, &rec.ExitPrice, &rec.ExitReason, &rec.ExitLabel, &rec.Result,
		&rec.PnLAmount, &rec.PnLPercent, &experimentID, &variant, &abGroup,
	)
	if err != nil {
		return nil, err
	}
	rec.ExperimentID = derefString(experimentID)
	rec.Variant = derefString(variant)
	rec.ABGroup = derefString(abGroup)
	return rec, nil
}

func (r *Repository) GetRecommendation(ctx context.Context, id string) (*model.Recommendation, error) {
	query := fmt.Sprintf(`SELECT %s FROM recommendations WHERE id = $1`, recommendationColumns)
	return scanRecommendation(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *Repository) ListActiveRecommendations(ctx context.Context, symbol string) ([]*model.Recommendation, error) {
	query := fmt.Sprintf(`SELECT %s FROM recommendations WHERE symbol = $1 AND status = 'ACTIVE' ORDER BY created_at DESC`, recommendationColumns)
	return r.queryRecommendations(ctx, query, symbol)
}

func (r *Repository) ListRecommendationHistory(ctx context.Context, symbol string, limit, offset int) ([]*model.Recommendation, error) {
	query := fmt.Sprintf(`SELECT %s FROM recommendations WHERE symbol = $1 AND status != 'ACTIVE' ORDER BY created_at DESC LIMIT $2 OFFSET $3`, recommendationColumns)
	return r.queryRecommendations(ctx, query, symbol, limit, offset)
}

func (r *Repository) ListRecentRecommendations(ctx context.Context, symbol string, since time.Time) ([]*model.Recommendation, error) {
	query := fmt.Sprintf(`SELECT %s FROM recommendations WHERE symbol = $1 AND created_at >= $2 ORDER BY created_at DESC`, recommendationColumns)
	return r.queryRecommendations(ctx, query, symbol, since)
}

func (r *Repository) queryRecommendations(ctx context.Context, query string, args ...interface{}) ([]*model.Recommendation, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) ListRecommendations(ctx context.Context, f model.RecommendationFilter) ([]*model.Recommendation, error) {
	var where []string
	var args []interface{}
	add := func(clause string, val interface{}) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Symbol != "" {
		add("symbol = $%d", f.Symbol)
	}
	if f.StrategyType != "" {
		add("strategy_type = $%d", f.StrategyType)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Result != "" {
		add("result = $%d", f.Result)
	}
	if f.Direction != "" {
		add("direction = $%d", f.Direction)
	}
	if f.ExperimentID != "" {
		add("experiment_id = $%d", f.ExperimentID)
	}
	if !f.StartDate.IsZero() {
		add("created_at >= $%d", f.StartDate)
	}
	if !f.EndDate.IsZero() {
		add("created_at <= $%d", f.EndDate)
	}
	if !f.IncludeActive {
		where = append(where, "status != 'ACTIVE'")
	}

	query := fmt.Sprintf(`SELECT %s FROM recommendations`, recommendationColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return r.queryRecommendations(ctx, query, args...)
}

func (r *Repository) DeleteRecommendation(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM recommendations WHERE id = $1 AND status != 'ACTIVE'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recommendation %s not found or still active", id)
	}
	return nil
}

func (r *Repository) TrimHistory(ctx context.Context, symbol string, keep int) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		DELETE FROM recommendations
		WHERE id IN (
			SELECT id FROM recommendations
			WHERE symbol = $1 AND status != 'ACTIVE'
			ORDER BY created_at DESC
			OFFSET $2
		)
	`, symbol, keep)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ---------------------------------------------------------------------------
// Executions
// ---------------------------------------------------------------------------

func (r *Repository) SaveExecution(ctx context.Context, e *model.Execution) error {
	query := `
		INSERT INTO executions (
			id, recommendation_id, symbol, direction, event_type, intended_price,
			fill_price, fill_timestamp, latency_ms, slippage_bps, fee_bps, pnl_amount, pnl_percent
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		e.ID, e.RecommendationID, e.Symbol, e.Direction, e.EventType, e.IntendedPrice,
		e.FillPrice, e.FillTimestamp, e.LatencyMs, e.SlippageBps, e.FeeBps, e.PnLAmount, e.PnLPercent,
	)
	return err
}

func (r *Repository) ListExecutions(ctx context.Context, recommendationID string) ([]*model.Execution, error) {
	query := `
		SELECT id, recommendation_id, symbol, direction, event_type, intended_price,
		       fill_price, fill_timestamp, latency_ms, slippage_bps, fee_bps, pnl_amount, pnl_percent
		FROM executions WHERE recommendation_id = $1 ORDER BY fill_timestamp ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, recommendationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Execution
	for rows.Next() {
		e := &model.Execution{}
		if err := rows.Scan(
			&e.ID, &e.RecommendationID, &e.Symbol, &e.Direction, &e.EventType, &e.IntendedPrice,
			&e.FillPrice, &e.FillTimestamp, &e.LatencyMs, &e.SlippageBps, &e.FeeBps, &e.PnLAmount, &e.PnLPercent,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) ListExecutionsFiltered(ctx context.Context, f model.ExecutionFilter) ([]*model.Execution, error) {
	var where []string
	var args []interface{}
	add := func(clause string, val interface{}) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Symbol != "" {
		add("symbol = $%d", f.Symbol)
	}
	if f.Direction != "" {
		add("direction = $%d", f.Direction)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if !f.StartDate.IsZero() {
		add("fill_timestamp >= $%d", f.StartDate)
	}
	if !f.EndDate.IsZero() {
		add("fill_timestamp <= $%d", f.EndDate)
	}

	query := `
		SELECT id, recommendation_id, symbol, direction, event_type, intended_price,
		       fill_price, fill_timestamp, latency_ms, slippage_bps, fee_bps, pnl_amount, pnl_percent
		FROM executions
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY fill_timestamp DESC"

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Execution
	for rows.Next() {
		e := &model.Execution{}
		if err := rows.Scan(
			&e.ID, &e.RecommendationID, &e.Symbol, &e.Direction, &e.EventType, &e.IntendedPrice,
			&e.FillPrice, &e.FillTimestamp, &e.LatencyMs, &e.SlippageBps, &e.FeeBps, &e.PnLAmount, &e.PnLPercent,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Lifecycle events
// ---------------------------------------------------------------------------

func (r *Repository) SaveRecommendationEvent(ctx context.Context, e *model.RecommendationEvent) error {
	query := `
		INSERT INTO recommendation_events (
			recommendation_id, event_type, exit_label, price, reason, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		e.RecommendationID, e.EventType, nullableExitLabel(e.ExitLabel), e.Price,
		nullableString(e.Reason), e.Timestamp,
	)
	return err
}

func (r *Repository) ListRecommendationEvents(ctx context.Context, recommendationID string) ([]*model.RecommendationEvent, error) {
	query := `
		SELECT recommendation_id, event_type, exit_label, price, reason, timestamp
		FROM recommendation_events WHERE recommendation_id = $1 ORDER BY timestamp ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, recommendationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.RecommendationEvent
	for rows.Next() {
		e := &model.RecommendationEvent{}
		var exitLabel *model.ExitLabel
		var reason *string
		if err := rows.Scan(&e.RecommendationID, &e.EventType, &exitLabel, &e.Price, &reason, &e.Timestamp); err != nil {
			return nil, err
		}
		e.ExitLabel = exitLabel
		e.Reason = derefString(reason)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Decision chains / steps
// ---------------------------------------------------------------------------

func (r *Repository) SaveDecisionChain(ctx context.Context, c *model.DecisionChain) error {
	query := `
		INSERT INTO decision_chains (chain_id, symbol, direction, source, started_at, final_decision)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	_, err := r.db.Pool.Exec(ctx, query, c.ChainID, c.Symbol, c.Direction, c.Source, c.StartedAt, c.FinalDecision)
	return err
}

func (r *Repository) AppendDecisionStep(ctx context.Context, chainID string, step model.DecisionStep) error {
	details, err := json.Marshal(step.Details)
	if err != nil {
		return fmt.Errorf("marshal step details: %w", err)
	}
	query := `
		INSERT INTO decision_steps (chain_id, index, stage, decision, reason, details, "timestamp")
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	_, err = r.db.Pool.Exec(ctx, query, chainID, step.Index, step.Stage, step.Decision, step.Reason, details, step.Timestamp)
	return err
}

func (r *Repository) FinalizeDecisionChain(ctx context.Context, c *model.DecisionChain) error {
	query := `
		UPDATE decision_chains SET
			finalized_at = $2, final_decision = $3, decision_time_ms = $4,
			recommendation_id = $5, execution_id = $6
		WHERE chain_id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, c.ChainID, c.FinalizedAt, c.FinalDecision, c.DecisionTimeMs, nullableString(c.RecommendationID), nullableString(c.ExecutionID))
	return err
}

func (r *Repository) GetDecisionChain(ctx context.Context, chainID string) (*model.DecisionChain, error) {
	c := &model.DecisionChain{ChainID: chainID}
	var recID, execID *string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT symbol, direction, source, started_at, finalized_at, final_decision,
		       decision_time_ms, recommendation_id, execution_id
		FROM decision_chains WHERE chain_id = $1
	`, chainID).Scan(&c.Symbol, &c.Direction, &c.Source, &c.StartedAt, &c.FinalizedAt,
		&c.FinalDecision, &c.DecisionTimeMs, &recID, &execID)
	if err != nil {
		return nil, err
	}
	c.RecommendationID = derefString(recID)
	c.ExecutionID = derefString(execID)

	rows, err := r.db.Pool.Query(ctx, `
		SELECT index, stage, decision, reason, details, "timestamp"
		FROM decision_steps WHERE chain_id = $1 ORDER BY index ASC
	`, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var step model.DecisionStep
		var rawDetails []byte
		if err := rows.Scan(&step.Index, &step.Stage, &step.Decision, &step.Reason, &rawDetails, &step.Timestamp); err != nil {
			return nil, err
		}
		if len(rawDetails) > 0 {
			if err := json.Unmarshal(rawDetails, &step.Details); err != nil {
				return nil, fmt.Errorf("unmarshal step details: %w", err)
			}
		}
		c.Steps = append(c.Steps, step)
	}
	return c, rows.Err()
}

func (r *Repository) ListDecisionChains(ctx context.Context, f model.DecisionChainFilter) ([]*model.DecisionChain, error) {
	var where []string
	var args []interface{}
	add := func(clause string, val interface{}) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Symbol != "" {
		add("symbol = $%d", f.Symbol)
	}
	if f.Direction != "" {
		add("direction = $%d", f.Direction)
	}
	if f.Source != "" {
		add("source = $%d", f.Source)
	}
	if !f.StartDate.IsZero() {
		add("started_at >= $%d", f.StartDate)
	}
	if !f.EndDate.IsZero() {
		add("started_at <= $%d", f.EndDate)
	}
	if f.FinalDecision != "" {
		add("final_decision = $%d", f.FinalDecision)
	}
	if f.FailuresOnly {
		where = append(where, "final_decision = 'REJECTED'")
	}

	query := `SELECT chain_id FROM decision_chains`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, chain_id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*model.DecisionChain, 0, len(ids))
	for _, id := range ids {
		c, err := r.GetDecisionChain(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Monitoring snapshots (gating rejections)
// ---------------------------------------------------------------------------

func (r *Repository) SaveMonitoringSnapshot(ctx context.Context, s *model.GatingSnapshot) error {
	detail, err := json.Marshal(s.Detail)
	if err != nil {
		return fmt.Errorf("marshal snapshot detail: %w", err)
	}
	query := `
		INSERT INTO monitoring_snapshots (recommendation_id, symbol, check_time, current_price, reason, stage, source, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`
	_, err = r.db.Pool.Exec(ctx, query, s.RecommendationID, s.Symbol, s.CheckTime, s.CurrentPrice, s.Reason, s.Stage, s.Source, detail)
	return err
}

func (r *Repository) ListMonitoringSnapshots(ctx context.Context, symbol string, limit, offset int) ([]*model.GatingSnapshot, error) {
	query := `
		SELECT recommendation_id, symbol, check_time, current_price, reason, stage, source, detail
		FROM monitoring_snapshots
	`
	args := []interface{}{}
	if symbol != "" {
		args = append(args, symbol)
		query += fmt.Sprintf(" WHERE symbol = $%d", len(args))
	}
	query += " ORDER BY check_time DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.GatingSnapshot
	for rows.Next() {
		var s model.GatingSnapshot
		var detail []byte
		if err := rows.Scan(&s.RecommendationID, &s.Symbol, &s.CheckTime, &s.CurrentPrice, &s.Reason, &s.Stage, &s.Source, &detail); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &s.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal snapshot detail: %w", err)
			}
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Slippage
// ---------------------------------------------------------------------------

func (r *Repository) SaveSlippageRecord(ctx context.Context, rec model.SlippageRecord) error {
	query := `
		INSERT INTO slippage_analysis (execution_id, symbol, direction, event_type, slippage_bps, bucket, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	_, err := r.db.Pool.Exec(ctx, query, rec.ID, rec.Symbol, rec.Direction, rec.EventType, rec.SlippageBps, slippageBucketLabel(rec.SlippageBps), rec.RecordedAt)
	return err
}

func (r *Repository) ListSlippageRecords(ctx context.Context, symbol string, since time.Time) ([]model.SlippageRecord, error) {
	query := `
		SELECT execution_id, symbol, direction, event_type, slippage_bps, recorded_at
		FROM slippage_analysis WHERE symbol = $1 AND recorded_at >= $2 ORDER BY recorded_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SlippageRecord
	for rows.Next() {
		var rec model.SlippageRecord
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Direction, &rec.EventType, &rec.SlippageBps, &rec.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) SaveSlippageStatistics(ctx context.Context, stats model.SlippageStatistics) error {
	buckets, err := json.Marshal(stats.Buckets)
	if err != nil {
		return fmt.Errorf("marshal slippage buckets: %w", err)
	}
	query := `
		INSERT INTO slippage_summary (symbol, sample_count, avg_bps, median_bps, p95_bps, buckets, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (symbol) DO UPDATE SET
			sample_count = EXCLUDED.sample_count, avg_bps = EXCLUDED.avg_bps,
			median_bps = EXCLUDED.median_bps, p95_bps = EXCLUDED.p95_bps,
			buckets = EXCLUDED.buckets, updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.Pool.Exec(ctx, query, stats.Symbol, stats.SampleCount, stats.AvgBps, stats.MedianBps, stats.P95Bps, buckets, stats.UpdatedAt)
	return err
}

func (r *Repository) GetSlippageStatistics(ctx context.Context, symbol string) (*model.SlippageStatistics, error) {
	stats := &model.SlippageStatistics{Symbol: symbol}
	var buckets []byte
	err := r.db.Pool.QueryRow(ctx, `
		SELECT sample_count, avg_bps, median_bps, p95_bps, buckets, updated_at
		FROM slippage_summary WHERE symbol = $1
	`, symbol).Scan(&stats.SampleCount, &stats.AvgBps, &stats.MedianBps, &stats.P95Bps, &buckets, &stats.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(buckets) > 0 {
		if err := json.Unmarshal(buckets, &stats.Buckets); err != nil {
			return nil, fmt.Errorf("unmarshal slippage buckets: %w", err)
		}
	}
	return stats, nil
}

func (r *Repository) SaveSlippageThreshold(ctx context.Context, th model.SlippageThreshold) error {
	query := `
		INSERT INTO slippage_thresholds (symbol, max_bps, k_sigma, last_adjusted_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (symbol) DO UPDATE SET
			max_bps = EXCLUDED.max_bps, k_sigma = EXCLUDED.k_sigma, last_adjusted_at = EXCLUDED.last_adjusted_at
	`
	_, err := r.db.Pool.Exec(ctx, query, th.Symbol, th.ThresholdBps, th.KSigma, th.LastAdjustedAt)
	return err
}

func (r *Repository) GetSlippageThreshold(ctx context.Context, symbol string) (*model.SlippageThreshold, error) {
	th := &model.SlippageThreshold{Symbol: symbol}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT max_bps, k_sigma, last_adjusted_at FROM slippage_thresholds WHERE symbol = $1
	`, symbol).Scan(&th.ThresholdBps, &th.KSigma, &th.LastAdjustedAt)
	if err != nil {
		return nil, err
	}
	return th, nil
}

func (r *Repository) SaveSlippageAlert(ctx context.Context, alert model.SlippageAlert) error {
	query := `
		INSERT INTO slippage_alerts (symbol, execution_id, observed_bps, threshold_bps, severity, message, triggered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	_, err := r.db.Pool.Exec(ctx, query, alert.Symbol, alert.ID, alert.SlippageBps, alert.ThresholdBps, alert.Severity, alert.Message, alert.RaisedAt)
	return err
}

func (r *Repository) ListSlippageAlerts(ctx context.Context, symbol string, limit int) ([]model.SlippageAlert, error) {
	query := `
		SELECT symbol, execution_id, observed_bps, threshold_bps, severity, message, triggered_at
		FROM slippage_alerts WHERE symbol = $1 ORDER BY triggered_at DESC LIMIT $2
	`
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SlippageAlert
	for rows.Next() {
		var a model.SlippageAlert
		if err := rows.Scan(&a.Symbol, &a.ID, &a.SlippageBps, &a.ThresholdBps, &a.Severity, &a.Message, &a.RaisedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func slippageBucketLabel(bps float64) string {
	switch {
	case bps < 5:
		return "0-5bps"
	case bps < 10:
		return "5-10bps"
	case bps < 25:
		return "10-25bps"
	case bps < 50:
		return "25-50bps"
	case bps < 100:
		return "50-100bps"
	default:
		return "100bps+"
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func nullableDirection(d model.Direction) interface{} {
	if d == "" {
		return nil
	}
	return d
}

func nullableExitLabel(l *model.ExitLabel) interface{} {
	if l == nil {
		return nil
	}
	return *l
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
