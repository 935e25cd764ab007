package repository

import (
	"context"
	"time"

	"course-marketplace/internal/domain/model"
)

// TransactionListFilter narrows ListByUser results.
type TransactionListFilter struct {
	Status *model.TransactionStatus
	Page   int // 1-based
	Limit  int
}

// TransactionStats is a read-side aggregation over a date range.
type TransactionStats struct {
	CountByStatus  map[model.TransactionStatus]int
	Revenue        int64 // sum of TotalAmount over PAID and REFUNDED rows
	RefundedAmount int64 // sum of TotalAmount over REFUNDED rows
}

type TransactionRepository interface {
	Save(ctx context.Context, qx any, t *model.Transaction) error
	FindByID(ctx context.Context, qx any, id string) (*model.Transaction, error)
	FindByOrderID(ctx context.Context, qx any, orderID string) (*model.Transaction, error)
	// FindInFlight returns the PENDING or PROCESSING transaction for the
	// (user, course) pair, or ErrNotFound. At most one such row exists; the
	// store enforces this with a partial unique index.
	FindInFlight(ctx context.Context, qx any, userID, courseID string) (*model.Transaction, error)
	ListByUser(ctx context.Context, qx any, userID string, f TransactionListFilter) ([]*model.Transaction, int, error)
	// UpdateStatusGuarded atomically moves a row to status only when its
	// current status is one of allowedFrom; reports whether a row changed.
	UpdateStatusGuarded(ctx context.Context, qx any, id string, status model.TransactionStatus, allowedFrom []model.TransactionStatus, paidAt, refundedAt *time.Time) (bool, error)
	// UpdateMeta persists the merged metadata and payment URL.
	UpdateMeta(ctx context.Context, qx any, id string, paymentURL string, meta model.TransactionMeta) error
	// ExpirePending bulk-moves PENDING rows whose deadline passed to EXPIRED
	// and returns how many rows changed.
	ExpirePending(ctx context.Context, qx any, now time.Time) (int, error)
	// ListStaleInFlight returns PENDING/PROCESSING rows created before the
	// cutoff that already hold a gateway token, for reconciliation.
	ListStaleInFlight(ctx context.Context, qx any, olderThan time.Time, limit int) ([]*model.Transaction, error)
	Stats(ctx context.Context, qx any, userID *string, from, to time.Time) (*TransactionStats, error)
}
