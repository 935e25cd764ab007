package repository

import (
	"context"

	"course-marketplace/internal/domain/model"
)

type EnrollmentRepository interface {
	// Upsert inserts by natural key (user_id, course_id) or reactivates the
	// existing row to ACTIVE. Never produces a second row for the same pair.
	Upsert(ctx context.Context, qx any, e *model.Enrollment) error
	FindByUserAndCourse(ctx context.Context, qx any, userID, courseID string) (*model.Enrollment, error)
	ListByUser(ctx context.Context, qx any, userID string) ([]*model.Enrollment, error)
	// DeleteByUserAndCourse removes the access grant; used by refunds.
	DeleteByUserAndCourse(ctx context.Context, qx any, userID, courseID string) error
}
