package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"course-marketplace/internal/domain"
	"course-marketplace/internal/domain/model"
	"course-marketplace/internal/domain/ports/repository"
)

var (
	_ repository.ReviewRepository   = (*reviewRepo)(nil)
	_ repository.WishlistRepository = (*wishlistRepo)(nil)
)

type reviewRepo struct{ pool *pgxpool.Pool }

func NewReviewRepo(pool *pgxpool.Pool) *reviewRepo {
	return &reviewRepo{pool: pool}
}

func (r *reviewRepo) ListByUser(ctx context.Context, qx any, userID string) ([]*model.Review, error) {
	const q = `SELECT id, user_id, course_id, rating, comment, created_at FROM reviews WHERE user_id=$1;`
	rows, err := queryRows(ctx, r.pool, qx, q, userID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Review
	for rows.Next() {
		rev := &model.Review{}
		if err := rows.Scan(&rev.ID, &rev.UserID, &rev.CourseID, &rev.Rating, &rev.Comment, &rev.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, rev)
	}
	return out, nil
}

type wishlistRepo struct{ pool *pgxpool.Pool }

func NewWishlistRepo(pool *pgxpool.Pool) *wishlistRepo {
	return &wishlistRepo{pool: pool}
}

func (r *wishlistRepo) ListByUser(ctx context.Context, qx any, userID string) ([]*model.WishlistItem, error) {
	const q = `SELECT id, user_id, course_id, created_at FROM wishlist_items WHERE user_id=$1;`
	rows, err := queryRows(ctx, r.pool, qx, q, userID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.WishlistItem
	for rows.Next() {
		w := &model.WishlistItem{}
		if err := rows.Scan(&w.ID, &w.UserID, &w.CourseID, &w.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, w)
	}
	return out, nil
}
