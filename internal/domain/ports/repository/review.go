package repository

import (
	"context"

	"course-marketplace/internal/domain/model"
)

type ReviewRepository interface {
	ListByUser(ctx context.Context, qx any, userID string) ([]*model.Review, error)
}

type WishlistRepository interface {
	ListByUser(ctx context.Context, qx any, userID string) ([]*model.WishlistItem, error)
}
