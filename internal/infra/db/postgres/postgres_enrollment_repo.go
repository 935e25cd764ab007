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

var _ repository.EnrollmentRepository = (*enrollmentRepo)(nil)

type enrollmentRepo struct{ pool *pgxpool.Pool }

func NewEnrollmentRepo(pool *pgxpool.Pool) *enrollmentRepo {
	return &enrollmentRepo{pool: pool}
}

const enrollmentColumns = `id, user_id, course_id, status, progress, enrolled_at, last_accessed_at, completed_at`

// Upsert inserts by the (user_id, course_id) natural key or reactivates the
// existing row. A COMPLETED enrollment keeps its progress and completion.
func (r *enrollmentRepo) Upsert(ctx context.Context, qx any, e *model.Enrollment) error {
	const q = `
INSERT INTO enrollments (id, user_id, course_id, status, progress, enrolled_at, last_accessed_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (user_id, course_id) DO UPDATE SET
  status = CASE WHEN enrollments.status = 'COMPLETED' THEN enrollments.status ELSE 'ACTIVE' END;`

	_, err := execSQL(ctx, r.pool, qx, q, e.ID, e.UserID, e.CourseID, e.Status, e.Progress, e.EnrolledAt, e.LastAccessedAt, e.CompletedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func scanEnrollment(row pgx.Row) (*model.Enrollment, error) {
	e := &model.Enrollment{}
	if err := row.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Status, &e.Progress, &e.EnrolledAt, &e.LastAccessedAt, &e.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return e, nil
}

func (r *enrollmentRepo) FindByUserAndCourse(ctx context.Context, qx any, userID, courseID string) (*model.Enrollment, error) {
	const q = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id=$1 AND course_id=$2 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, qx, q, userID, courseID)
	if err != nil {
		return nil, err
	}
	return scanEnrollment(row)
}

func (r *enrollmentRepo) ListByUser(ctx context.Context, qx any, userID string) ([]*model.Enrollment, error) {
	const q = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id=$1 ORDER BY enrolled_at DESC;`
	rows, err := queryRows(ctx, r.pool, qx, q, userID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *enrollmentRepo) DeleteByUserAndCourse(ctx context.Context, qx any, userID, courseID string) error {
	const q = `DELETE FROM enrollments WHERE user_id=$1 AND course_id=$2;`
	if _, err := execSQL(ctx, r.pool, qx, q, userID, courseID); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
