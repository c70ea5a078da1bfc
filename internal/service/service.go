package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yield-rebalancer/internal/alerting"
	"yield-rebalancer/internal/config"
	"yield-rebalancer/internal/markets"
	"yield-rebalancer/internal/pipeline"
	"yield-rebalancer/internal/profit"
	"yield-rebalancer/internal/scheduler"
	"yield-rebalancer/internal/storage"
)

// Service orchestrates market scanning, profitability scoring, swap safety
// validation, journaling, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	markets   markets.Source
	engine    *profit.Engine
	pipe      *pipeline.Pipeline
	store     storage.DecisionStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	position config.PositionConfig
	dryRun   bool
	channels []string
	alertsOn bool
}

// New constructs the rebalancing service.
func New(cfg *config.Config, sched *scheduler.Scheduler, source markets.Source, engine *profit.Engine, pipe *pipeline.Pipeline, store storage.DecisionStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		markets:   source,
		engine:    engine,
		pipe:      pipe,
		store:     store,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		position:  cfg.Position,
		dryRun:    cfg.Pipeline.DryRun,
		channels:  cfg.Alerting.Channels,
		alertsOn:  cfg.Alerting.Enabled,
	}
}

// Run begins the aligned scan loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket executes one rebalance scan: pick the best alternative
// market, score the move, validate a required swap, and journal the outcome.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	if s.position.SizeUSD <= 0 {
		return fmt.Errorf("position.size_usd not configured")
	}

	snapshot, err := s.markets.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetch market snapshot: %w", err)
	}

	current, target, ok := s.pickCandidate(snapshot)
	if !ok {
		s.logger.Info().Time("bucket", bucket).Msg("no alternative market found")
		return nil
	}

	positionUSD := decimal.NewFromFloat(s.position.SizeUSD)
	requiresSwap := target.Token != s.position.Token

	move := profit.CandidateMove{
		CurrentAPY:     current.SupplyAPY,
		TargetAPY:      target.SupplyAPY,
		PositionUSD:    positionUSD,
		RequiresSwap:   requiresSwap,
		ProtocolFeePct: target.ProtocolFeePct,
	}
	if requiresSwap {
		move.SwapAmountUSD = positionUSD
	}

	result, err := s.engine.Evaluate(ctx, move)
	if err != nil {
		return fmt.Errorf("evaluate candidate: %w", err)
	}

	record := storage.DecisionRecord{
		Bucket:        bucket,
		FromProtocol:  current.Protocol,
		ToProtocol:    target.Protocol,
		Token:         s.position.Token,
		PositionUSD:   positionUSD,
		CurrentAPY:    current.SupplyAPY,
		TargetAPY:     target.SupplyAPY,
		AnnualGainUSD: result.AnnualGainUSD,
		TotalCostUSD:  result.Costs.Total(),
		NetGainUSD:    result.NetGainFirstYear,
		BreakEvenDays: result.BreakEvenDays,
		Profitable:    result.IsProfitable,
	}

	switch {
	case !result.IsProfitable:
		record.Status = storage.StatusRejected
		s.logger.Info().Time("bucket", bucket).
			Strs("reasons", result.RejectionReasons).
			Msg("candidate rejected as unprofitable")

	case !requiresSwap:
		record.Status = storage.StatusValidated
		s.logger.Info().Time("bucket", bucket).
			Str("to", target.Protocol).
			Msg("profitable move requires no swap")

	default:
		runResult, runErr := s.pipe.ExecuteSwap(ctx, pipeline.SwapRequest{
			TokenIn:        current.TokenAddress,
			TokenOut:       target.TokenAddress,
			TokenInSymbol:  current.Token,
			TokenOutSymbol: target.Token,
			AmountIn:       positionUSD,
			FromAddress:    s.position.FromAddress,
			DryRun:         s.dryRun,
			SlippageBps:    -1,
		})
		if runErr != nil {
			return fmt.Errorf("swap safety pipeline: %w", runErr)
		}

		success := runResult.Success
		record.PipelineSuccess = &success
		if checksJSON, err := json.Marshal(runResult.Checks); err == nil {
			record.Checks = checksJSON
		}
		if runResult.Error != "" {
			errText := runResult.Error
			record.Error = &errText
		}
		if success {
			record.Status = storage.StatusValidated
		} else {
			record.Status = storage.StatusBlocked
		}

		s.logger.Info().Time("bucket", bucket).
			Bool("pipeline_success", success).
			Str("status", record.Status).
			Msg("swap safety pipeline completed")
	}

	if s.store != nil {
		if _, err := s.store.InsertDecision(ctx, record); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to journal decision")
		}
	}

	s.maybeAlert(ctx, bucket, record, result)
	return nil
}

// pickCandidate locates the current market and the highest-APY alternative.
func (s *Service) pickCandidate(snapshot []markets.Market) (current, target markets.Market, ok bool) {
	current = markets.Market{
		Protocol:  s.position.Protocol,
		Token:     s.position.Token,
		SupplyAPY: decimal.NewFromFloat(s.position.CurrentAPY),
	}
	for _, m := range snapshot {
		if m.Protocol == s.position.Protocol && m.Token == s.position.Token {
			current = m
			break
		}
	}

	found := false
	for _, m := range snapshot {
		if m.Protocol == current.Protocol && m.Token == current.Token {
			continue
		}
		if !found || m.SupplyAPY.GreaterThan(target.SupplyAPY) {
			target = m
			found = true
		}
	}
	return current, target, found
}

func (s *Service) maybeAlert(ctx context.Context, bucket time.Time, record storage.DecisionRecord, result profit.MoveProfitability) {
	if !s.alertsOn || s.notifier == nil {
		return
	}
	// Unprofitable candidates are routine; only surfaced decisions alert.
	if record.Status == storage.StatusRejected {
		return
	}

	note := alerting.Notification{
		Bucket:        bucket,
		FromProtocol:  record.FromProtocol,
		ToProtocol:    record.ToProtocol,
		Token:         record.Token,
		PositionUSD:   record.PositionUSD,
		NetGainUSD:    record.NetGainUSD,
		BreakEvenDays: record.BreakEvenDays,
		Status:        record.Status,
		Channels:      s.channels,
	}
	if record.Status == storage.StatusBlocked && record.Error != nil {
		note.Reasons = []string{*record.Error}
	} else if !result.IsProfitable {
		note.Reasons = result.RejectionReasons
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to dispatch alert")
	}
}
