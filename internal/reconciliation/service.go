// Package reconciliation checks that the per-address aggregates still add up
// to the transfer records they were built from.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emperorhan/token-transfer-indexer/internal/alert"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
	"github.com/emperorhan/token-transfer-indexer/internal/metrics"
	"github.com/emperorhan/token-transfer-indexer/internal/store"
)

const DefaultInterval = time.Hour

// TokenResult holds the outcome for one token.
type TokenResult struct {
	TokenAddress string              `json:"token_address"`
	TokenSymbol  string              `json:"token_symbol"`
	Totals       *model.LedgerTotals `json:"totals,omitempty"`
	SentDiff     string              `json:"sent_diff"`
	ReceivedDiff string              `json:"received_diff"`
	CountDiff    int64               `json:"count_diff"`
	IsMatch      bool                `json:"is_match"`
	Error        string              `json:"error,omitempty"`
	CheckedAt    time.Time           `json:"checked_at"`
}

// RunResult aggregates a full reconciliation run.
type RunResult struct {
	Indexer    string        `json:"indexer"`
	Total      int           `json:"total"`
	Matched    int           `json:"matched"`
	Mismatched int           `json:"mismatched"`
	Errors     int           `json:"errors"`
	Tokens     []TokenResult `json:"tokens"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Service compares transfer volume with the summed aggregates of every
// configured token.
type Service struct {
	totals  store.TotalsReader
	tokens  []model.Token
	chain   string
	indexer string
	alerter alert.Alerter
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(
	totals store.TotalsReader,
	tokens []model.Token,
	chainName, indexerName string,
	alerter alert.Alerter,
	logger *slog.Logger,
) *Service {
	if alerter == nil {
		alerter = alert.NoopAlerter{}
	}
	return &Service{
		totals:  totals,
		tokens:  tokens,
		chain:   chainName,
		indexer: indexerName,
		alerter: alerter,
		logger:  logger.With("component", "reconciliation"),
		now:     time.Now,
	}
}

// Reconcile checks every token once. Read failures are counted per token;
// the run itself only fails when ctx ends.
func (s *Service) Reconcile(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		Indexer:   s.indexer,
		StartedAt: s.now(),
	}

	for _, tok := range s.tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := s.reconcileOne(ctx, tok)
		result.Tokens = append(result.Tokens, res)
		result.Total++
		switch {
		case res.Error != "":
			result.Errors++
			metrics.ReconciliationErrorsTotal.WithLabelValues(s.indexer, tok.Symbol).Inc()
		case res.IsMatch:
			result.Matched++
		default:
			result.Mismatched++
			metrics.ReconciliationMismatchesTotal.WithLabelValues(s.indexer, tok.Symbol).Inc()
		}
	}
	result.FinishedAt = s.now()
	metrics.ReconciliationRunsTotal.WithLabelValues(s.indexer).Inc()

	if result.Mismatched > 0 {
		s.alertMismatch(ctx, result)
	}

	s.logger.Info("reconciliation completed",
		"total", result.Total, "matched", result.Matched,
		"mismatched", result.Mismatched, "errors", result.Errors,
	)
	return result, nil
}

func (s *Service) reconcileOne(ctx context.Context, tok model.Token) TokenResult {
	res := TokenResult{
		TokenAddress: tok.Address,
		TokenSymbol:  tok.Symbol,
		CheckedAt:    s.now(),
	}

	t, err := s.totals.Totals(ctx, tok.Address)
	if err != nil {
		s.logger.Warn("failed to read ledger totals", "token", tok.Symbol, "error", err)
		res.Error = err.Error()
		return res
	}
	res.Totals = t

	volume, err1 := decimal.NewFromString(t.TransferVolume)
	sent, err2 := decimal.NewFromString(t.TotalSent)
	received, err3 := decimal.NewFromString(t.TotalReceived)
	if err1 != nil || err2 != nil || err3 != nil {
		res.Error = fmt.Sprintf("unparseable totals volume=%q sent=%q received=%q",
			t.TransferVolume, t.TotalSent, t.TotalReceived)
		return res
	}

	res.SentDiff = sent.Sub(volume).String()
	res.ReceivedDiff = received.Sub(volume).String()
	res.CountDiff = t.TransactionCount - t.Touches
	res.IsMatch = sent.Equal(volume) && received.Equal(volume) && res.CountDiff == 0
	if !res.IsMatch {
		s.logger.Error("ledger aggregates disagree with transfers",
			"token", tok.Symbol,
			"transfer_volume", t.TransferVolume,
			"total_sent", t.TotalSent,
			"total_received", t.TotalReceived,
			"touches", t.Touches,
			"transaction_count", t.TransactionCount,
		)
	}
	return res
}

func (s *Service) alertMismatch(ctx context.Context, result *RunResult) {
	fields := map[string]string{
		"matched":    strconv.Itoa(result.Matched),
		"mismatched": strconv.Itoa(result.Mismatched),
		"errors":     strconv.Itoa(result.Errors),
	}
	for _, r := range result.Tokens {
		if r.Error == "" && !r.IsMatch {
			fields[r.TokenSymbol] = fmt.Sprintf("sent %s, received %s, count %+d",
				r.SentDiff, r.ReceivedDiff, r.CountDiff)
		}
	}
	err := s.alerter.Send(context.WithoutCancel(ctx), alert.Alert{
		Type:    alert.AlertTypeReconcileErr,
		Chain:   s.chain,
		Indexer: s.indexer,
		Title:   "Ledger reconciliation mismatch detected",
		Message: fmt.Sprintf("%d/%d tokens have aggregates that disagree with their transfers", result.Mismatched, result.Total),
		Fields:  fields,
	})
	if err != nil {
		s.logger.Warn("failed to send reconciliation alert", "error", err)
	}
}

// RunPeriodic reconciles at the given interval until ctx is cancelled.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.logger.Info("periodic reconciliation started", "interval", interval, "tokens", len(s.tokens))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("periodic reconciliation stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("periodic reconciliation failed", "error", err)
			}
		}
	}
}
