package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"course-marketplace/internal/domain/model"
	"course-marketplace/internal/domain/ports/repository"
)

// EnrollmentUseCase owns access grants. Grant and Remove are the side-effect
// hooks of the transaction lifecycle; both are idempotent by natural key.
type EnrollmentUseCase struct {
	enrollments repository.EnrollmentRepository
	log         *zerolog.Logger
}

func NewEnrollmentUseCase(enrollments repository.EnrollmentRepository, logger *zerolog.Logger) *EnrollmentUseCase {
	l := logger.With().Str("component", "EnrollmentUC").Logger()
	return &EnrollmentUseCase{enrollments: enrollments, log: &l}
}

// Grant creates the enrollment for (user, course) or reactivates an existing
// row to ACTIVE. Calling it twice never produces two rows.
func (u *EnrollmentUseCase) Grant(ctx context.Context, userID, courseID string) error {
	now := time.Now()
	return u.enrollments.Upsert(ctx, nil, &model.Enrollment{
		ID:         uuid.NewString(),
		UserID:     userID,
		CourseID:   courseID,
		Status:     model.EnrollmentStatusActive,
		Progress:   0,
		EnrolledAt: now,
	})
}

// Remove deletes the access grant; used when a paid transaction is refunded.
func (u *EnrollmentUseCase) Remove(ctx context.Context, userID, courseID string) error {
	return u.enrollments.DeleteByUserAndCourse(ctx, nil, userID, courseID)
}

func (u *EnrollmentUseCase) Find(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	return u.enrollments.FindByUserAndCourse(ctx, nil, userID, courseID)
}

func (u *EnrollmentUseCase) ListByUser(ctx context.Context, userID string) ([]*model.Enrollment, error) {
	return u.enrollments.ListByUser(ctx, nil, userID)
}
