package model

// UserProfile is the ephemeral preference profile derived from a user's
// history on each recommendation request. It is never persisted.
type UserProfile struct {
	UserID          string
	CategoryWeights map[string]float64
	LevelWeights    map[CourseLevel]float64
	TagWeights      map[string]float64
	DisabilityType  string
	// ExcludedCourseIDs holds courses the user already enrolled in or
	// reviewed; candidates in this set are never recommended.
	ExcludedCourseIDs map[string]struct{}
}

func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:            userID,
		CategoryWeights:   make(map[string]float64),
		LevelWeights:      make(map[CourseLevel]float64),
		TagWeights:        make(map[string]float64),
		ExcludedCourseIDs: make(map[string]struct{}),
	}
}

// ScoredCourse is one ranked recommendation result.
type ScoredCourse struct {
	Course *Course
	Score  float64
	// Reason is a short human-readable explanation, picked by priority:
	// accessibility match > category/tag match > high rating > generic.
	Reason string
}
