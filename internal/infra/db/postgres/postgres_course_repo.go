package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-marketplace/internal/domain"
	"course-marketplace/internal/domain/model"
	"course-marketplace/internal/domain/ports/repository"
)

var _ repository.CourseRepository = (*courseRepo)(nil)

type courseRepo struct{ pool *pgxpool.Pool }

func NewCourseRepo(pool *pgxpool.Pool) *courseRepo {
	return &courseRepo{pool: pool}
}

const courseColumns = `id, mentor_id, title, slug, category, level, tags, price, discount_price, published, average_rating, total_students, created_at, updated_at`

func scanCourse(row pgx.Row) (*model.Course, error) {
	c := &model.Course{}
	if err := row.Scan(&c.ID, &c.MentorID, &c.Title, &c.Slug, &c.Category, &c.Level, &c.Tags,
		&c.Price, &c.DiscountPrice, &c.Published, &c.AverageRating, &c.TotalStudents,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

func (r *courseRepo) FindByID(ctx context.Context, qx any, id string) (*model.Course, error) {
	const q = `SELECT ` + courseColumns + ` FROM courses WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, qx, q, id)
	if err != nil {
		return nil, err
	}
	return scanCourse(row)
}

func (r *courseRepo) listCourses(ctx context.Context, qx any, q string, args ...interface{}) ([]*model.Course, error) {
	rows, err := queryRows(ctx, r.pool, qx, q, args...)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *courseRepo) ListPublished(ctx context.Context, qx any, limit int) ([]*model.Course, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + courseColumns + ` FROM courses WHERE published ORDER BY created_at DESC LIMIT $1;`
	return r.listCourses(ctx, qx, q, limit)
}

func (r *courseRepo) ListTrending(ctx context.Context, qx any, limit int) ([]*model.Course, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `SELECT ` + courseColumns + ` FROM courses WHERE published ORDER BY total_students DESC, average_rating DESC LIMIT $1;`
	return r.listCourses(ctx, qx, q, limit)
}

func (r *courseRepo) MentorTotalStudents(ctx context.Context, qx any, mentorID string) (int, error) {
	const q = `SELECT COALESCE(SUM(total_students),0) FROM courses WHERE mentor_id=$1;`
	row, err := pickRow(ctx, r.pool, qx, q, mentorID)
	if err != nil {
		return 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return total, nil
}
