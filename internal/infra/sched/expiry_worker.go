package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-marketplace/internal/infra/metrics"
	"course-marketplace/internal/usecase"
)

// ExpiryWorker periodically moves overdue PENDING transactions to EXPIRED.
type ExpiryWorker struct {
	interval time.Duration
	txUC     usecase.TransactionUseCase
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, txUC usecase.TransactionUseCase, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{interval: interval, txUC: txUC, log: &l}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.txUC.ExpireOld(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("expiry sweep error")
			}
			if n > 0 {
				metrics.AddExpiredSweep(n)
				w.log.Info().Int("count", n).Msg("overdue transactions expired")
			}
		}
	}
}
