package repository

import (
	"context"

	"course-marketplace/internal/domain/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, qx any, id string) (*model.User, error)
}
