package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-marketplace/internal/domain"
	"course-marketplace/internal/domain/model"
	"course-marketplace/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const txnColumns = `id, order_id, user_id, course_id, amount, discount, total_amount, payment_method, status, payment_url, meta, created_at, updated_at, paid_at, expires_at, refunded_at`

func (r *transactionRepo) Save(ctx context.Context, qx any, t *model.Transaction) error {
	meta, err := json.Marshal(t.Meta)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO transactions (
  id, order_id, user_id, course_id, amount, discount, total_amount, payment_method, status, payment_url, meta, created_at, updated_at, paid_at, expires_at, refunded_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
) ON CONFLICT (id) DO UPDATE SET
  status=$9, payment_url=$10, meta=$11, updated_at=$13, paid_at=$14, refunded_at=$16;`

	_, err = execSQL(ctx, r.pool, qx, q,
		t.ID, t.OrderID, t.UserID, t.CourseID, t.Amount, t.Discount, t.TotalAmount,
		t.PaymentMethod, t.Status, t.PaymentURL, meta, t.CreatedAt, t.UpdatedAt,
		t.PaidAt, t.ExpiresAt, t.RefundedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// The partial unique index on in-flight (user, course) pairs
			// rejected a duplicate purchase attempt.
			return domain.ErrConflict
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	t := &model.Transaction{}
	var meta []byte
	if err := row.Scan(&t.ID, &t.OrderID, &t.UserID, &t.CourseID, &t.Amount, &t.Discount,
		&t.TotalAmount, &t.PaymentMethod, &t.Status, &t.PaymentURL, &meta,
		&t.CreatedAt, &t.UpdatedAt, &t.PaidAt, &t.ExpiresAt, &t.RefundedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Meta); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return t, nil
}

func (r *transactionRepo) FindByID(ctx context.Context, qx any, id string) (*model.Transaction, error) {
	q := `SELECT ` + txnColumns + ` FROM transactions WHERE id=$1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, qx, q+";", id)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) FindByOrderID(ctx context.Context, qx any, orderID string) (*model.Transaction, error) {
	q := `SELECT ` + txnColumns + ` FROM transactions WHERE order_id=$1 LIMIT 1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, qx, q+";", orderID)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) FindInFlight(ctx context.Context, qx any, userID, courseID string) (*model.Transaction, error) {
	q := `SELECT ` + txnColumns + ` FROM transactions WHERE user_id=$1 AND course_id=$2 AND status IN ('PENDING','PROCESSING') LIMIT 1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, qx, q+";", userID, courseID)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) ListByUser(ctx context.Context, qx any, userID string, f repository.TransactionListFilter) ([]*model.Transaction, int, error) {
	args := []interface{}{userID}
	where := `WHERE user_id=$1`
	if f.Status != nil {
		where += ` AND status=$2`
		args = append(args, *f.Status)
	}

	countRow, err := pickRow(ctx, r.pool, qx, `SELECT COUNT(*) FROM transactions `+where+`;`, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}

	offset := (f.Page - 1) * f.Limit
	q := `SELECT ` + txnColumns + ` FROM transactions ` + where +
		` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(f.Limit) + ` OFFSET ` + strconv.Itoa(offset) + `;`
	rows, err := queryRows(ctx, r.pool, qx, q, args...)
	if err != nil {
		return nil, 0, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, nil
}

func (r *transactionRepo) UpdateStatusGuarded(ctx context.Context, qx any, id string, status model.TransactionStatus, allowedFrom []model.TransactionStatus, paidAt, refundedAt *time.Time) (bool, error) {
	from := make([]string, 0, len(allowedFrom))
	for _, s := range allowedFrom {
		if s != status { // self-transition is a caller-side no-op
			from = append(from, string(s))
		}
	}
	const q = `
UPDATE transactions
   SET status = $2,
       paid_at = COALESCE($3, paid_at),
       refunded_at = COALESCE($4, refunded_at),
       updated_at = NOW()
 WHERE id = $1
   AND status = ANY($5);`

	cmd, err := execSQL(ctx, r.pool, qx, q, id, string(status), paidAt, refundedAt, from)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *transactionRepo) UpdateMeta(ctx context.Context, qx any, id string, paymentURL string, meta model.TransactionMeta) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `UPDATE transactions SET payment_url=$2, meta=$3, updated_at=NOW() WHERE id=$1;`
	if _, err := execSQL(ctx, r.pool, qx, q, id, paymentURL, b); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) ExpirePending(ctx context.Context, qx any, now time.Time) (int, error) {
	const q = `UPDATE transactions SET status='EXPIRED', updated_at=NOW() WHERE status='PENDING' AND expires_at < $1;`
	cmd, err := execSQL(ctx, r.pool, qx, q, now)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return int(cmd.RowsAffected()), nil
}

func (r *transactionRepo) ListStaleInFlight(ctx context.Context, qx any, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + txnColumns + ` FROM transactions
 WHERE status IN ('PENDING','PROCESSING')
   AND created_at < $1
   AND meta->'gateway'->>'token' IS NOT NULL
 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, qx, q, olderThan, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *transactionRepo) Stats(ctx context.Context, qx any, userID *string, from, to time.Time) (*repository.TransactionStats, error) {
	args := []interface{}{from, to}
	where := `WHERE created_at >= $1 AND created_at < $2`
	if userID != nil {
		where += ` AND user_id = $3`
		args = append(args, *userID)
	}

	rows, err := queryRows(ctx, r.pool, qx,
		`SELECT status, COUNT(*), COALESCE(SUM(total_amount),0) FROM transactions `+where+` GROUP BY status;`, args...)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	stats := &repository.TransactionStats{CountByStatus: make(map[model.TransactionStatus]int)}
	for rows.Next() {
		var status model.TransactionStatus
		var count int
		var sum int64
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		stats.CountByStatus[status] = count
		switch status {
		case model.TransactionStatusPaid:
			stats.Revenue += sum
		case model.TransactionStatusRefunded:
			stats.Revenue += sum
			stats.RefundedAmount += sum
		}
	}
	return stats, nil
}
