package usecase

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"course-marketplace/internal/domain"
	"course-marketplace/internal/domain/model"
	"course-marketplace/internal/domain/ports/adapter"
	"course-marketplace/internal/domain/ports/repository"
)

// Compile-time check
var _ TransactionUseCase = (*transactionUC)(nil)

// PaymentResponse is what the create flow hands back to the HTTP layer.
type PaymentResponse struct {
	OrderID       string                  `json:"order_id"`
	TransactionID string                  `json:"transaction_id"`
	PaymentURL    string                  `json:"payment_url"`
	Status        model.TransactionStatus `json:"status"`
	Amount        int64                   `json:"amount"`
	ExpiresAt     time.Time               `json:"expires_at"`
}

// WebhookResult is returned to the webhook endpoint instead of an error so
// business-logic failures never turn into gateway retry storms.
type WebhookResult struct {
	OK      bool                    `json:"success"`
	Message string                  `json:"message"`
	Status  model.TransactionStatus `json:"status,omitempty"`
	Amount  int64                   `json:"-"`
}

// CacheInvalidator lets the transaction engine drop a user's recommendation
// cache entry when a purchase lands.
type CacheInvalidator interface {
	InvalidateUser(userID string)
}

type TransactionUseCase interface {
	// Create opens a purchase attempt for (user, course). Idempotent: an
	// in-flight transaction for the same pair is returned instead of a
	// duplicate.
	Create(ctx context.Context, userID, courseID, paymentMethod string) (*PaymentResponse, error)
	GetByID(ctx context.Context, id string, userID *string) (*model.Transaction, error)
	GetByOrderID(ctx context.Context, orderID string, userID *string) (*model.Transaction, error)
	ListByUser(ctx context.Context, userID string, f repository.TransactionListFilter) ([]*model.Transaction, int, error)
	// UpdateStatus applies one transition through the central legality table.
	UpdateStatus(ctx context.Context, id string, status model.TransactionStatus, meta *model.TransactionMeta) (*model.Transaction, error)
	// ProcessWebhook reconciles one gateway notification. Safe under
	// at-least-once, out-of-order delivery.
	ProcessWebhook(ctx context.Context, n *adapter.Notification) WebhookResult
	// ApplyGatewayStatus applies a gateway-vocabulary status to an order
	// without a signature check. Used by the reconciler, which obtained the
	// status from the gateway itself.
	ApplyGatewayStatus(ctx context.Context, orderID, gatewayStatus string) WebhookResult
	// ExpireOld moves overdue PENDING transactions to EXPIRED and returns the
	// number of rows touched.
	ExpireOld(ctx context.Context) (int, error)
	Cancel(ctx context.Context, id string, userID *string) (*model.Transaction, error)
	Refund(ctx context.Context, id, reason, adminID string) (*model.Transaction, error)
}

type transactionUC struct {
	txs         repository.TransactionRepository
	courses     repository.CourseRepository
	users       repository.UserRepository
	enrollments *EnrollmentUseCase
	gateway     adapter.PaymentGateway
	tm          repository.TransactionManager
	invalidator CacheInvalidator // optional
	log         *zerolog.Logger
}

func NewTransactionUseCase(
	txs repository.TransactionRepository,
	courses repository.CourseRepository,
	users repository.UserRepository,
	enrollments *EnrollmentUseCase,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *transactionUC {
	l := logger.With().Str("component", "TransactionUC").Logger()
	return &transactionUC{
		txs:         txs,
		courses:     courses,
		users:       users,
		enrollments: enrollments,
		gateway:     gateway,
		tm:          tm,
		log:         &l,
	}
}

// SetCacheInvalidator wires the recommendation cache; optional to keep the
// construction order acyclic.
func (u *transactionUC) SetCacheInvalidator(inv CacheInvalidator) { u.invalidator = inv }

func hashPairToInt64(a, b string) int64 {
	h := fnv.New64a()
	h.Write([]byte(a))
	h.Write([]byte{0})
	h.Write([]byte(b))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

func (u *transactionUC) Create(ctx context.Context, userID, courseID, paymentMethod string) (*PaymentResponse, error) {
	if userID == "" || courseID == "" || paymentMethod == "" {
		return nil, domain.ErrValidation
	}

	course, err := u.courses.FindByID(ctx, nil, courseID)
	if err != nil {
		return nil, err
	}
	if course.IsFree() {
		return nil, fmt.Errorf("%w: free course has no payment flow", domain.ErrValidation)
	}

	if enr, err := u.enrollments.Find(ctx, userID, courseID); err == nil && enr != nil {
		if enr.Status == model.EnrollmentStatusActive || enr.Status == model.EnrollmentStatusCompleted {
			return nil, fmt.Errorf("%w: user already enrolled in course", domain.ErrConflict)
		}
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	var txn *model.Transaction

	// The advisory xact lock serializes concurrent creates for the same
	// (user, course); the partial unique index on in-flight rows backstops it.
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.lockPair(ctx, tx, userID, courseID); err != nil {
			return err
		}

		existing, err := u.txs.FindInFlight(ctx, tx, userID, courseID)
		if err == nil {
			txn = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		txn = &model.Transaction{
			ID:            uuid.NewString(),
			OrderID:       ulid.Make().String(),
			UserID:        userID,
			CourseID:      courseID,
			Amount:        course.EffectivePrice(),
			Discount:      course.DiscountAmount(),
			TotalAmount:   course.EffectivePrice(),
			PaymentMethod: paymentMethod,
			Status:        model.TransactionStatusPending,
			Meta: model.TransactionMeta{
				Course: &model.CourseSnapshot{
					Title:         course.Title,
					Price:         course.Price,
					DiscountPrice: course.DiscountPrice,
				},
			},
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(24 * time.Hour),
		}
		return u.txs.Save(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}

	// The row is persisted before the gateway handoff. When the handoff
	// fails the PENDING row stays without a payment URL; re-entering Create
	// retries the handoff for the same order, and the reconciler plus the
	// 24h sweep cover the rest.
	if txn.PaymentURL == "" {
		if err := u.handoffToGateway(ctx, txn, course); err != nil {
			u.log.Error().Err(err).Str("order_id", txn.OrderID).Msg("gateway handoff failed")
			return nil, err
		}
	}

	return &PaymentResponse{
		OrderID:       txn.OrderID,
		TransactionID: txn.ID,
		PaymentURL:    txn.PaymentURL,
		Status:        txn.Status,
		Amount:        txn.TotalAmount,
		ExpiresAt:     txn.ExpiresAt,
	}, nil
}

func (u *transactionUC) lockPair(ctx context.Context, tx repository.Tx, userID, courseID string) error {
	pgtx, ok := tx.(pgx.Tx)
	if !ok {
		return nil // non-pg stores (tests) rely on the repo's own guarantees
	}
	_, err := pgtx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", hashPairToInt64(userID, courseID))
	return err
}

func (u *transactionUC) handoffToGateway(ctx context.Context, txn *model.Transaction, course *model.Course) error {
	customerName, customerEmail := "", ""
	if user, err := u.users.FindByID(ctx, nil, txn.UserID); err == nil {
		customerName, customerEmail = user.Name, user.Email
	}

	resp, err := u.gateway.CreateTransaction(ctx, adapter.CreateTransactionRequest{
		OrderID:       txn.OrderID,
		GrossAmount:   txn.TotalAmount,
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		CourseName:    course.Title,
		UserID:        txn.UserID,
		CourseID:      txn.CourseID,
	})
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}

	txn.PaymentURL = resp.RedirectURL
	txn.Meta.Merge(model.TransactionMeta{Gateway: &model.GatewayMeta{
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}})
	txn.UpdatedAt = time.Now()
	return u.txs.UpdateMeta(ctx, nil, txn.ID, txn.PaymentURL, txn.Meta)
}

func (u *transactionUC) GetByID(ctx context.Context, id string, userID *string) (*model.Transaction, error) {
	txn, err := u.txs.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if userID != nil && txn.UserID != *userID {
		return nil, domain.ErrNotFound
	}
	return txn, nil
}

func (u *transactionUC) GetByOrderID(ctx context.Context, orderID string, userID *string) (*model.Transaction, error) {
	txn, err := u.txs.FindByOrderID(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	if userID != nil && txn.UserID != *userID {
		return nil, domain.ErrNotFound
	}
	return txn, nil
}

func (u *transactionUC) ListByUser(ctx context.Context, userID string, f repository.TransactionListFilter) ([]*model.Transaction, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return u.txs.ListByUser(ctx, nil, userID, f)
}

// allowedSources lists every status from which a legal transition into the
// target exists, including the target itself (replay no-op).
func allowedSources(to model.TransactionStatus) []model.TransactionStatus {
	all := []model.TransactionStatus{
		model.TransactionStatusPending, model.TransactionStatusProcessing,
		model.TransactionStatusPaid, model.TransactionStatusFailed,
		model.TransactionStatusCancelled, model.TransactionStatusExpired,
		model.TransactionStatusRefunded,
	}
	var out []model.TransactionStatus
	for _, from := range all {
		if model.CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

func (u *transactionUC) UpdateStatus(ctx context.Context, id string, status model.TransactionStatus, meta *model.TransactionMeta) (*model.Transaction, error) {
	txn, err := u.txs.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(txn.Status, status) {
		return nil, fmt.Errorf("%w: cannot move transaction from %s to %s", domain.ErrValidation, txn.Status, status)
	}
	return u.applyStatus(ctx, txn, status, meta)
}

// applyStatus performs the guarded write plus side effects. The caller has
// already vetted legality; the guarded UPDATE re-checks it against the store
// so concurrent writers cannot double-apply.
func (u *transactionUC) applyStatus(ctx context.Context, txn *model.Transaction, status model.TransactionStatus, meta *model.TransactionMeta) (*model.Transaction, error) {
	now := time.Now()
	var paidAt, refundedAt *time.Time
	if status == model.TransactionStatusPaid && txn.PaidAt == nil {
		paidAt = &now
	}
	if status == model.TransactionStatusRefunded && txn.RefundedAt == nil {
		refundedAt = &now
	}

	changed := false
	if txn.Status != status {
		var err error
		changed, err = u.txs.UpdateStatusGuarded(ctx, nil, txn.ID, status, allowedSources(status), paidAt, refundedAt)
		if err != nil {
			return nil, err
		}
	}

	if meta != nil {
		txn.Meta.Merge(*meta)
		if err := u.txs.UpdateMeta(ctx, nil, txn.ID, txn.PaymentURL, txn.Meta); err != nil {
			return nil, err
		}
	}

	prev := txn.Status
	txn.Status = status
	txn.UpdatedAt = now
	if paidAt != nil {
		txn.PaidAt = paidAt
	}
	if refundedAt != nil {
		txn.RefundedAt = refundedAt
	}

	// PAID and REFUNDED side effects run on replays too, not only when this
	// call won the guarded UPDATE. Grant is an upsert and Remove is a delete
	// by natural key, so rerunning them is harmless, and a redelivered
	// notification is the recovery path when the row flipped but the
	// enrollment write failed afterwards.
	switch status {
	case model.TransactionStatusPaid:
		if err := u.enrollments.Grant(ctx, txn.UserID, txn.CourseID); err != nil {
			return nil, fmt.Errorf("transaction %s paid but enrollment grant failed: %w", txn.ID, err)
		}
		if u.invalidator != nil {
			u.invalidator.InvalidateUser(txn.UserID)
		}
		if changed {
			u.log.Info().Str("order_id", txn.OrderID).Str("user_id", txn.UserID).Msg("transaction paid, enrollment granted")
		}
	case model.TransactionStatusRefunded:
		if err := u.enrollments.Remove(ctx, txn.UserID, txn.CourseID); err != nil {
			// The transaction is already REFUNDED in the store; surface the
			// cleanup failure rather than swallowing it.
			return nil, fmt.Errorf("transaction %s refunded but enrollment removal failed: %w", txn.ID, err)
		}
		if u.invalidator != nil {
			u.invalidator.InvalidateUser(txn.UserID)
		}
		if changed {
			u.log.Info().Str("order_id", txn.OrderID).Str("user_id", txn.UserID).Msg("transaction refunded, enrollment removed")
		}
	default:
		if changed {
			u.log.Debug().Str("order_id", txn.OrderID).Str("from", string(prev)).Str("to", string(status)).Msg("transaction status updated")
		}
	}

	return txn, nil
}

// mapGatewayStatus translates the gateway vocabulary into the internal enum.
// Unknown statuses map to PENDING so an event is never silently dropped.
func mapGatewayStatus(status, fraudStatus string) model.TransactionStatus {
	switch status {
	case "capture", "settlement":
		if fraudStatus == "deny" {
			return model.TransactionStatusFailed
		}
		return model.TransactionStatusPaid
	case "pending", "authorize":
		return model.TransactionStatusPending
	case "deny":
		return model.TransactionStatusFailed
	case "cancel":
		return model.TransactionStatusCancelled
	case "expire":
		return model.TransactionStatusExpired
	case "refund", "partial_refund":
		return model.TransactionStatusRefunded
	default:
		return model.TransactionStatusPending
	}
}

func (u *transactionUC) ProcessWebhook(ctx context.Context, n *adapter.Notification) WebhookResult {
	if !u.gateway.VerifyNotification(n) {
		u.log.Warn().Str("order_id", n.OrderID).Msg("webhook signature verification failed")
		return WebhookResult{OK: false, Message: "invalid signature"}
	}
	return u.applyNotification(ctx, n)
}

func (u *transactionUC) ApplyGatewayStatus(ctx context.Context, orderID, gatewayStatus string) WebhookResult {
	return u.applyNotification(ctx, &adapter.Notification{
		OrderID:           orderID,
		TransactionStatus: gatewayStatus,
	})
}

func (u *transactionUC) applyNotification(ctx context.Context, n *adapter.Notification) WebhookResult {
	txn, err := u.txs.FindByOrderID(ctx, nil, n.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("order_id", n.OrderID).Msg("webhook for unknown order")
			return WebhookResult{OK: false, Message: "unknown order"}
		}
		u.log.Error().Err(err).Str("order_id", n.OrderID).Msg("webhook lookup failed")
		return WebhookResult{OK: false, Message: "lookup failed"}
	}

	mapped := mapGatewayStatus(n.TransactionStatus, n.FraudStatus)

	// Out-of-order or replayed deliveries targeting a state the transaction
	// has already passed are acknowledged without mutation.
	if !model.CanTransition(txn.Status, mapped) {
		u.log.Info().
			Str("order_id", n.OrderID).
			Str("current", string(txn.Status)).
			Str("gateway_status", n.TransactionStatus).
			Msg("webhook ignored: transition not applicable")
		return WebhookResult{OK: true, Message: "already processed", Status: txn.Status, Amount: txn.TotalAmount}
	}

	var settlement *time.Time
	if t, err := time.Parse("2006-01-02 15:04:05", n.TransactionTime); err == nil {
		settlement = &t
	}
	meta := &model.TransactionMeta{Gateway: &model.GatewayMeta{
		Token:          gatewayToken(txn),
		RedirectURL:    txn.PaymentURL,
		RawStatus:      n.TransactionStatus,
		PaymentType:    n.PaymentType,
		FraudStatus:    n.FraudStatus,
		SettlementTime: settlement,
	}}

	replay := txn.Status == mapped
	if _, err := u.applyStatus(ctx, txn, mapped, meta); err != nil {
		u.log.Error().Err(err).Str("order_id", n.OrderID).Msg("webhook status apply failed")
		return WebhookResult{OK: false, Message: "status update failed"}
	}
	if replay {
		return WebhookResult{OK: true, Message: "already processed", Status: mapped, Amount: txn.TotalAmount}
	}
	return WebhookResult{OK: true, Message: "processed", Status: mapped, Amount: txn.TotalAmount}
}

func gatewayToken(txn *model.Transaction) string {
	if txn.Meta.Gateway != nil {
		return txn.Meta.Gateway.Token
	}
	return ""
}

func (u *transactionUC) ExpireOld(ctx context.Context) (int, error) {
	n, err := u.txs.ExpirePending(ctx, nil, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		u.log.Info().Int("count", n).Msg("expired overdue pending transactions")
	}
	return n, nil
}

func (u *transactionUC) Cancel(ctx context.Context, id string, userID *string) (*model.Transaction, error) {
	txn, err := u.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if txn.Status != model.TransactionStatusPending {
		return nil, fmt.Errorf("%w: only pending transactions can be cancelled, current status %s", domain.ErrValidation, txn.Status)
	}
	return u.applyStatus(ctx, txn, model.TransactionStatusCancelled, nil)
}

func (u *transactionUC) Refund(ctx context.Context, id, reason, adminID string) (*model.Transaction, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: refund reason is required", domain.ErrValidation)
	}
	txn, err := u.txs.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if txn.Status != model.TransactionStatusPaid {
		return nil, fmt.Errorf("%w: only paid transactions can be refunded, current status %s", domain.ErrValidation, txn.Status)
	}
	if txn.RefundedAt != nil {
		return nil, fmt.Errorf("%w: transaction already refunded", domain.ErrValidation)
	}

	meta := &model.TransactionMeta{Refund: &model.RefundMeta{
		Reason:     reason,
		AdminID:    adminID,
		RefundedAt: time.Now(),
	}}
	return u.applyStatus(ctx, txn, model.TransactionStatusRefunded, meta)
}
