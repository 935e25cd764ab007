package repository

import (
	"context"

	"course-marketplace/internal/domain/model"
)

type CourseRepository interface {
	FindByID(ctx context.Context, qx any, id string) (*model.Course, error)
	// ListPublished returns up to limit published courses, newest first.
	ListPublished(ctx context.Context, qx any, limit int) ([]*model.Course, error)
	// ListTrending returns published courses ranked by popularity
	// (students, then rating).
	ListTrending(ctx context.Context, qx any, limit int) ([]*model.Course, error)
	// MentorTotalStudents sums TotalStudents across a mentor's courses.
	MentorTotalStudents(ctx context.Context, qx any, mentorID string) (int, error)
}
