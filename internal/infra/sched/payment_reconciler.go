package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-marketplace/internal/domain/ports/adapter"
	"course-marketplace/internal/domain/ports/repository"
	"course-marketplace/internal/usecase"
)

// PaymentReconciler periodically scans for stale in-flight transactions that
// already reached the gateway and polls the gateway for their real status.
// This covers lost webhooks and crashes between the payment and the callback.
type PaymentReconciler struct {
	txUC       usecase.TransactionUseCase
	txs        repository.TransactionRepository
	gateway    adapter.PaymentGateway
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old an in-flight transaction must be to poll
	log        *zerolog.Logger
}

func NewPaymentReconciler(txUC usecase.TransactionUseCase, txs repository.TransactionRepository, gateway adapter.PaymentGateway, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		txUC:       txUC,
		txs:        txs,
		gateway:    gateway,
		interval:   interval,
		staleAfter: staleAfter,
		log:        &l,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting payment reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.txs.ListStaleInFlight(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale in-flight transactions failed")
		return
	}
	for _, t := range stale {
		status, err := w.gateway.StatusOf(ctx, t.OrderID)
		if err != nil {
			w.log.Warn().Err(err).Str("order_id", t.OrderID).Msg("gateway status poll failed")
			continue
		}
		// Reuse the webhook mapping and idempotency; a status obtained from
		// the gateway itself needs no signature check.
		res := w.txUC.ApplyGatewayStatus(ctx, t.OrderID, status)
		if !res.OK {
			w.log.Warn().Str("order_id", t.OrderID).Str("message", res.Message).Msg("reconciliation apply failed")
			continue
		}
		w.log.Info().Str("order_id", t.OrderID).Str("gateway_status", status).Msg("transaction reconciled")
	}
}
