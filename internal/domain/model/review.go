package model

import "time"

// Review is a student's rating of a course they bought. Reviewed courses are
// excluded from that student's recommendation candidates.
type Review struct {
	ID        string // UUID
	UserID    string
	CourseID  string
	Rating    int // 1..5
	Comment   string
	CreatedAt time.Time
}

// WishlistItem marks latent interest; a weaker recommendation signal than an
// enrollment.
type WishlistItem struct {
	ID        string // UUID
	UserID    string
	CourseID  string
	CreatedAt time.Time
}
