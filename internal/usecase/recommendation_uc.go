package usecase

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"course-marketplace/internal/domain/model"
	"course-marketplace/internal/domain/ports/repository"
)

// Scoring weights. Enrollment signal outweighs wishlist signal: an enrollment
// is demonstrated intent, a wishlist entry only latent interest.
const (
	profileEnrollWeight      = 3.0
	profileEnrollTagWeight   = 2.0
	profileWishlistWeight    = 2.0
	profileWishlistTagWeight = 1.0

	scoreCategoryFactor  = 5.0
	scoreLevelFactor     = 3.0
	scoreTagFactor       = 2.0
	scoreAccessibility   = 15.0
	scoreRatingFactor    = 2.0
	scorePopularityBase  = 3.0
	scoreHighRatingBonus = 5.0
	scorePopularBonus    = 3.0
	scoreMentorBonus     = 2.0

	highRatingThreshold    = 4.5
	popularThreshold       = 1000
	mentorPopularThreshold = 500

	candidatePoolSize = 100
)

// Similar-course anchoring weights.
const (
	similarCategory  = 10.0
	similarLevel     = 5.0
	similarMentor    = 8.0
	similarTagFactor = 3.0
)

// RecommendationCache holds ranked result sets per user. Process-local with a
// short TTL; in a multi-instance deployment every instance carries its own
// view, which is an accepted staleness relaxation for this feature.
type RecommendationCache interface {
	Get(userID string) ([]model.ScoredCourse, bool)
	Set(userID string, items []model.ScoredCourse)
	Invalidate(userID string)
}

// Compile-time check
var _ RecommendationUseCase = (*recommendationUC)(nil)

type RecommendationUseCase interface {
	// PersonalizedFor returns up to limit courses ranked for the user. Never
	// fails hard: internal errors degrade to the trending list.
	PersonalizedFor(ctx context.Context, userID string, limit int) ([]model.ScoredCourse, error)
	// SimilarTo ranks courses against a reference course, user-independent.
	SimilarTo(ctx context.Context, courseID string, limit int) ([]model.ScoredCourse, error)
	// Trending is the global popularity ranking and the fallback path.
	Trending(ctx context.Context, limit int) ([]model.ScoredCourse, error)
	// InvalidateUser drops the user's cached ranking (e.g. on new enrollment).
	InvalidateUser(userID string)
}

type recommendationUC struct {
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	reviews     repository.ReviewRepository
	wishlists   repository.WishlistRepository
	users       repository.UserRepository
	cache       RecommendationCache
	log         *zerolog.Logger
}

func NewRecommendationUseCase(
	courses repository.CourseRepository,
	enrollments repository.EnrollmentRepository,
	reviews repository.ReviewRepository,
	wishlists repository.WishlistRepository,
	users repository.UserRepository,
	cache RecommendationCache,
	logger *zerolog.Logger,
) *recommendationUC {
	l := logger.With().Str("component", "RecommendationUC").Logger()
	return &recommendationUC{
		courses:     courses,
		enrollments: enrollments,
		reviews:     reviews,
		wishlists:   wishlists,
		users:       users,
		cache:       cache,
		log:         &l,
	}
}

func (u *recommendationUC) PersonalizedFor(ctx context.Context, userID string, limit int) ([]model.ScoredCourse, error) {
	if limit <= 0 {
		limit = 10
	}

	if ranked, ok := u.cache.Get(userID); ok {
		return truncate(ranked, limit), nil
	}

	ranked, err := u.rankForUser(ctx, userID)
	if err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("personalized ranking failed, falling back to trending")
		return u.Trending(ctx, limit)
	}

	u.cache.Set(userID, ranked)
	return truncate(ranked, limit), nil
}

func (u *recommendationUC) rankForUser(ctx context.Context, userID string) ([]model.ScoredCourse, error) {
	profile, err := u.buildProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	pool, err := u.courses.ListPublished(ctx, nil, candidatePoolSize)
	if err != nil {
		return nil, err
	}

	mentorStudents := make(map[string]int)
	var ranked []model.ScoredCourse
	for _, c := range pool {
		if _, excluded := profile.ExcludedCourseIDs[c.ID]; excluded {
			continue
		}
		ms, ok := mentorStudents[c.MentorID]
		if !ok {
			// Mentor aggregates are cheap to cache per request.
			ms, _ = u.courses.MentorTotalStudents(ctx, nil, c.MentorID)
			mentorStudents[c.MentorID] = ms
		}
		ranked = append(ranked, scoreCandidate(c, profile, ms))
	}

	sortRanked(ranked)
	return ranked, nil
}

// buildProfile scans the user's enrollments, wishlist and reviews into the
// ephemeral preference profile.
func (u *recommendationUC) buildProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	profile := model.NewUserProfile(userID)

	if user, err := u.users.FindByID(ctx, nil, userID); err == nil {
		profile.DisabilityType = user.DisabilityType
	}

	enrollments, err := u.enrollments.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	for _, e := range enrollments {
		profile.ExcludedCourseIDs[e.CourseID] = struct{}{}
		course, err := u.courses.FindByID(ctx, nil, e.CourseID)
		if err != nil {
			continue
		}
		profile.CategoryWeights[course.Category] += profileEnrollWeight
		profile.LevelWeights[course.Level] += profileEnrollWeight
		for _, tag := range course.Tags {
			profile.TagWeights[tag] += profileEnrollTagWeight
		}
	}

	wishlist, err := u.wishlists.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	for _, w := range wishlist {
		course, err := u.courses.FindByID(ctx, nil, w.CourseID)
		if err != nil {
			continue
		}
		profile.CategoryWeights[course.Category] += profileWishlistWeight
		profile.LevelWeights[course.Level] += profileWishlistWeight
		for _, tag := range course.Tags {
			profile.TagWeights[tag] += profileWishlistTagWeight
		}
	}

	reviews, err := u.reviews.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		profile.ExcludedCourseIDs[r.CourseID] = struct{}{}
	}

	return profile, nil
}

// accessibilityTag is the catalog convention marking a course as suited for a
// declared disability type, e.g. "accessible-visual".
func accessibilityTag(disabilityType string) string {
	return "accessible-" + disabilityType
}

func scoreCandidate(c *model.Course, p *model.UserProfile, mentorStudents int) model.ScoredCourse {
	score := 0.0
	categoryOrTagMatch := false

	if w := p.CategoryWeights[c.Category]; w > 0 {
		score += scoreCategoryFactor * w
		categoryOrTagMatch = true
	}
	if w := p.LevelWeights[c.Level]; w > 0 {
		score += scoreLevelFactor * w
	}
	for _, tag := range c.Tags {
		if w := p.TagWeights[tag]; w > 0 {
			score += scoreTagFactor * w
			categoryOrTagMatch = true
		}
	}

	accessibilityMatch := p.DisabilityType != "" && c.HasTag(accessibilityTag(p.DisabilityType))
	if accessibilityMatch {
		score += scoreAccessibility
	}

	score += scoreRatingFactor * c.AverageRating
	score += scorePopularityBase * math.Log10(float64(c.TotalStudents)+1)
	if c.AverageRating >= highRatingThreshold {
		score += scoreHighRatingBonus
	}
	if c.TotalStudents >= popularThreshold {
		score += scorePopularBonus
	}
	if mentorStudents >= mentorPopularThreshold {
		score += scoreMentorBonus
	}

	reason := "Recommended for you"
	switch {
	case accessibilityMatch:
		reason = "Matches your accessibility needs"
	case categoryOrTagMatch:
		reason = "Based on your interests"
	case c.AverageRating >= highRatingThreshold:
		reason = "Highly rated by students"
	}

	return model.ScoredCourse{Course: c, Score: score, Reason: reason}
}

func (u *recommendationUC) SimilarTo(ctx context.Context, courseID string, limit int) ([]model.ScoredCourse, error) {
	if limit <= 0 {
		limit = 10
	}
	ref, err := u.courses.FindByID(ctx, nil, courseID)
	if err != nil {
		return nil, err
	}

	pool, err := u.courses.ListPublished(ctx, nil, candidatePoolSize)
	if err != nil {
		return nil, err
	}

	var ranked []model.ScoredCourse
	for _, c := range pool {
		if c.ID == ref.ID {
			continue
		}
		score := 0.0
		if c.Category == ref.Category {
			score += similarCategory
		}
		if c.Level == ref.Level {
			score += similarLevel
		}
		if c.MentorID == ref.MentorID {
			score += similarMentor
		}
		for _, tag := range c.Tags {
			if ref.HasTag(tag) {
				score += similarTagFactor
			}
		}
		score += scoreRatingFactor * c.AverageRating
		score += scorePopularityBase * math.Log10(float64(c.TotalStudents)+1)

		ranked = append(ranked, model.ScoredCourse{Course: c, Score: score, Reason: "Similar to " + ref.Title})
	}

	sortRanked(ranked)
	return truncate(ranked, limit), nil
}

func (u *recommendationUC) Trending(ctx context.Context, limit int) ([]model.ScoredCourse, error) {
	if limit <= 0 {
		limit = 10
	}
	courses, err := u.courses.ListTrending(ctx, nil, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoredCourse, 0, len(courses))
	for _, c := range courses {
		score := scoreRatingFactor*c.AverageRating + scorePopularityBase*math.Log10(float64(c.TotalStudents)+1)
		out = append(out, model.ScoredCourse{Course: c, Score: score, Reason: "Trending now"})
	}
	return out, nil
}

func (u *recommendationUC) InvalidateUser(userID string) {
	u.cache.Invalidate(userID)
}

// sortRanked orders by score descending with course ID as a stable tiebreak,
// so two computations over identical inputs produce identical rankings.
func sortRanked(ranked []model.ScoredCourse) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Course.ID < ranked[j].Course.ID
	})
}

func truncate(ranked []model.ScoredCourse, limit int) []model.ScoredCourse {
	if len(ranked) <= limit {
		return ranked
	}
	return ranked[:limit]
}
