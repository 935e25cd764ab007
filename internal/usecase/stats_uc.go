package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-marketplace/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	// Totals aggregates transaction counts and revenue over [from, to).
	Totals(ctx context.Context, from, to time.Time) (*repository.TransactionStats, error)
	// UserTotals is Totals scoped to one user.
	UserTotals(ctx context.Context, userID string, from, to time.Time) (*repository.TransactionStats, error)
	// MonthTotals aggregates over the calendar month containing at, UTC.
	MonthTotals(ctx context.Context, at time.Time) (*repository.TransactionStats, error)
}

type statsUC struct {
	txs repository.TransactionRepository
	log *zerolog.Logger
}

func NewStatsUseCase(txs repository.TransactionRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{txs: txs, log: logger}
}

func (s *statsUC) Totals(ctx context.Context, from, to time.Time) (*repository.TransactionStats, error) {
	return s.txs.Stats(ctx, nil, nil, from, to)
}

func (s *statsUC) UserTotals(ctx context.Context, userID string, from, to time.Time) (*repository.TransactionStats, error) {
	return s.txs.Stats(ctx, nil, &userID, from, to)
}

// MonthBounds returns the half-open UTC calendar month interval containing at.
func MonthBounds(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	from := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func (s *statsUC) MonthTotals(ctx context.Context, at time.Time) (*repository.TransactionStats, error) {
	from, to := MonthBounds(at)
	return s.txs.Stats(ctx, nil, nil, from, to)
}
