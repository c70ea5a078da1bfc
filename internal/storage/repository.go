package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	insertDecisionSQL = `INSERT INTO rebalance_decisions (
        bucket_ts,
        from_protocol,
        to_protocol,
        token,
        position_usd,
        current_apy,
        target_apy,
        annual_gain_usd,
        total_cost_usd,
        net_gain_usd,
        break_even_days,
        profitable,
        pipeline_success,
        checks,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
    ) RETURNING id;`

	decisionColumns = `id,
        bucket_ts,
        from_protocol,
        to_protocol,
        token,
        position_usd,
        current_apy,
        target_apy,
        annual_gain_usd,
        total_cost_usd,
        net_gain_usd,
        break_even_days,
        profitable,
        pipeline_success,
        checks,
        status,
        error,
        created_at`
)

var (
	listDecisionsBetweenSQL = fmt.Sprintf(`SELECT %s
    FROM rebalance_decisions
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`, decisionColumns)

	listRecentDecisionsSQL = fmt.Sprintf(`SELECT %s
    FROM rebalance_decisions
    ORDER BY bucket_ts DESC, id DESC
    LIMIT $1;`, decisionColumns)
)

// DecisionStore persists and reads rebalance decision records.
type DecisionStore interface {
	InsertDecision(ctx context.Context, record DecisionRecord) (int64, error)
	ListRecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error)
	ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]DecisionRecord, error)
}

// Store wraps a pgx pool with decision journal queries.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store around an initialised pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertDecision appends a decision record and returns its id.
func (s *Store) InsertDecision(ctx context.Context, record DecisionRecord) (int64, error) {
	if s.pool == nil {
		return 0, ErrNotConfigured
	}

	var id int64
	err := s.pool.QueryRow(ctx, insertDecisionSQL,
		record.Bucket,
		record.FromProtocol,
		record.ToProtocol,
		record.Token,
		record.PositionUSD,
		record.CurrentAPY,
		record.TargetAPY,
		record.AnnualGainUSD,
		record.TotalCostUSD,
		record.NetGainUSD,
		record.BreakEvenDays,
		record.Profitable,
		record.PipelineSuccess,
		record.Checks,
		record.Status,
		record.Error,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert decision: %w", err)
	}
	return id, nil
}

// ListRecentDecisions returns up to limit decisions, newest first.
func (s *Store) ListRecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, listRecentDecisionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent decisions: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// ListDecisionsBetween returns decisions in [from, to), oldest first.
func (s *Store) ListDecisionsBetween(ctx context.Context, from, to time.Time) ([]DecisionRecord, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.pool.Query(ctx, listDecisionsBetweenSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

func scanDecisions(rows pgx.Rows) ([]DecisionRecord, error) {
	var records []DecisionRecord
	for rows.Next() {
		var record DecisionRecord
		if err := rows.Scan(
			&record.ID,
			&record.Bucket,
			&record.FromProtocol,
			&record.ToProtocol,
			&record.Token,
			&record.PositionUSD,
			&record.CurrentAPY,
			&record.TargetAPY,
			&record.AnnualGainUSD,
			&record.TotalCostUSD,
			&record.NetGainUSD,
			&record.BreakEvenDays,
			&record.Profitable,
			&record.PipelineSuccess,
			&record.Checks,
			&record.Status,
			&record.Error,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

var _ DecisionStore = (*Store)(nil)
