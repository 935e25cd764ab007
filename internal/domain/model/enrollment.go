package model

import "time"

type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// Enrollment grants a user access to a course. Created or reactivated when a
// transaction reaches PAID, removed when that transaction is refunded.
// (user_id, course_id) is unique at the store level.
type Enrollment struct {
	ID             string // UUID
	UserID         string
	CourseID       string
	Status         EnrollmentStatus
	Progress       int // 0..100
	EnrolledAt     time.Time
	LastAccessedAt *time.Time
	CompletedAt    *time.Time
}
