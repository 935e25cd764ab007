package model

import "time"

type CourseLevel string

const (
	CourseLevelBeginner     CourseLevel = "beginner"
	CourseLevelIntermediate CourseLevel = "intermediate"
	CourseLevelAdvanced     CourseLevel = "advanced"
)

// Course is the sellable catalog record. Rating and student counters are
// denormalized aggregates maintained by the review/enrollment write paths.
type Course struct {
	ID            string // UUID
	MentorID      string // UUID
	Title         string
	Slug          string
	Category      string
	Level         CourseLevel
	Tags          []string
	Price         int64  // list price, minor currency units
	DiscountPrice *int64 // nil when not discounted
	Published     bool
	AverageRating float64
	TotalStudents int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectivePrice is the amount a buyer is charged right now.
func (c *Course) EffectivePrice() int64 {
	if c.DiscountPrice != nil {
		return *c.DiscountPrice
	}
	return c.Price
}

// DiscountAmount is the difference between list and discounted price.
func (c *Course) DiscountAmount() int64 {
	if c.DiscountPrice == nil {
		return 0
	}
	return c.Price - *c.DiscountPrice
}

// IsFree reports whether the course costs nothing to enroll. Free courses
// never produce a payment transaction.
func (c *Course) IsFree() bool { return c.EffectivePrice() <= 0 }

// HasTag reports whether the course carries the given tag (exact match).
func (c *Course) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
