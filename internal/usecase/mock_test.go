//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-marketplace/internal/domain"
	"course-marketplace/internal/domain/model"
	"course-marketplace/internal/domain/ports/adapter"
	"course-marketplace/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(nil)
	return &logger
}

func pairKey(userID, courseID string) string { return userID + "|" + courseID }

// =============================
// Repositories
// =============================

// ---- Mock TransactionRepository ----

type MockTransactionRepo struct {
	mu      sync.Mutex
	data    map[string]*model.Transaction // by id
	byOrder map[string]string             // order id -> id

	SaveFunc                func(ctx context.Context, qx any, t *model.Transaction) error
	FindByOrderIDFunc       func(ctx context.Context, qx any, orderID string) (*model.Transaction, error)
	UpdateStatusGuardedFunc func(ctx context.Context, qx any, id string, status model.TransactionStatus, allowedFrom []model.TransactionStatus, paidAt, refundedAt *time.Time) (bool, error)
	UpdateMetaFunc          func(ctx context.Context, qx any, id string, paymentURL string, meta model.TransactionMeta) error
	ExpirePendingFunc       func(ctx context.Context, qx any, now time.Time) (int, error)
	StatsFunc               func(ctx context.Context, qx any, userID *string, from, to time.Time) (*repository.TransactionStats, error)
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{
		data:    make(map[string]*model.Transaction),
		byOrder: make(map[string]string),
	}
}

func (m *MockTransactionRepo) Save(ctx context.Context, qx any, t *model.Transaction) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, qx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.data[t.ID] = &cp
	m.byOrder[t.OrderID] = t.ID
	return nil
}

func (m *MockTransactionRepo) FindByID(ctx context.Context, qx any, id string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTransactionRepo) FindByOrderID(ctx context.Context, qx any, orderID string) (*model.Transaction, error) {
	if m.FindByOrderIDFunc != nil {
		return m.FindByOrderIDFunc(ctx, qx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m.data[id]
	return &cp, nil
}

func (m *MockTransactionRepo) FindInFlight(ctx context.Context, qx any, userID, courseID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.data {
		if t.UserID == userID && t.CourseID == courseID &&
			(t.Status == model.TransactionStatusPending || t.Status == model.TransactionStatusProcessing) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) ListByUser(ctx context.Context, qx any, userID string, f repository.TransactionListFilter) ([]*model.Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.data {
		if t.UserID != userID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *MockTransactionRepo) UpdateStatusGuarded(ctx context.Context, qx any, id string, status model.TransactionStatus, allowedFrom []model.TransactionStatus, paidAt, refundedAt *time.Time) (bool, error) {
	if m.UpdateStatusGuardedFunc != nil {
		return m.UpdateStatusGuardedFunc(ctx, qx, id, status, allowedFrom, paidAt, refundedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[id]
	if !ok {
		return false, nil
	}
	guard := false
	for _, from := range allowedFrom {
		if t.Status == from && from != status {
			guard = true
			break
		}
	}
	if !guard {
		return false, nil
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	if paidAt != nil {
		t.PaidAt = paidAt
	}
	if refundedAt != nil {
		t.RefundedAt = refundedAt
	}
	return true, nil
}

func (m *MockTransactionRepo) UpdateMeta(ctx context.Context, qx any, id string, paymentURL string, meta model.TransactionMeta) error {
	if m.UpdateMetaFunc != nil {
		return m.UpdateMetaFunc(ctx, qx, id, paymentURL, meta)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.PaymentURL = paymentURL
	t.Meta = meta
	return nil
}

func (m *MockTransactionRepo) ExpirePending(ctx context.Context, qx any, now time.Time) (int, error) {
	if m.ExpirePendingFunc != nil {
		return m.ExpirePendingFunc(ctx, qx, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.data {
		if t.Status == model.TransactionStatusPending && t.ExpiresAt.Before(now) {
			t.Status = model.TransactionStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *MockTransactionRepo) ListStaleInFlight(ctx context.Context, qx any, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.data {
		if len(out) >= limit {
			break
		}
		inFlight := t.Status == model.TransactionStatusPending || t.Status == model.TransactionStatusProcessing
		if inFlight && t.CreatedAt.Before(olderThan) && t.Meta.Gateway != nil && t.Meta.Gateway.Token != "" {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockTransactionRepo) Stats(ctx context.Context, qx any, userID *string, from, to time.Time) (*repository.TransactionStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, qx, userID, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &repository.TransactionStats{CountByStatus: make(map[model.TransactionStatus]int)}
	for _, t := range m.data {
		if userID != nil && t.UserID != *userID {
			continue
		}
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		stats.CountByStatus[t.Status]++
		switch t.Status {
		case model.TransactionStatusPaid:
			stats.Revenue += t.TotalAmount
		case model.TransactionStatusRefunded:
			stats.Revenue += t.TotalAmount
			stats.RefundedAmount += t.TotalAmount
		}
	}
	return stats, nil
}

// Get returns the stored row without copying, for test assertions.
func (m *MockTransactionRepo) Get(id string) *model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[id]
}

// ---- Mock EnrollmentRepository ----

type MockEnrollmentRepo struct {
	mu   sync.Mutex
	data map[string]*model.Enrollment // by (user, course)

	UpsertCalls int
	DeleteCalls int

	UpsertFunc func(ctx context.Context, qx any, e *model.Enrollment) error
	DeleteFunc func(ctx context.Context, qx any, userID, courseID string) error
}

var _ repository.EnrollmentRepository = (*MockEnrollmentRepo)(nil)

func NewMockEnrollmentRepo() *MockEnrollmentRepo {
	return &MockEnrollmentRepo{data: make(map[string]*model.Enrollment)}
}

func (m *MockEnrollmentRepo) Upsert(ctx context.Context, qx any, e *model.Enrollment) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, qx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	key := pairKey(e.UserID, e.CourseID)
	if existing, ok := m.data[key]; ok {
		if existing.Status != model.EnrollmentStatusCompleted {
			existing.Status = model.EnrollmentStatusActive
		}
		return nil
	}
	cp := *e
	m.data[key] = &cp
	return nil
}

func (m *MockEnrollmentRepo) FindByUserAndCourse(ctx context.Context, qx any, userID, courseID string) (*model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[pairKey(userID, courseID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockEnrollmentRepo) ListByUser(ctx context.Context, qx any, userID string) ([]*model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Enrollment
	for _, e := range m.data {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockEnrollmentRepo) DeleteByUserAndCourse(ctx context.Context, qx any, userID, courseID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, qx, userID, courseID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	delete(m.data, pairKey(userID, courseID))
	return nil
}

func (m *MockEnrollmentRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// ---- Mock CourseRepository ----

type MockCourseRepo struct {
	mu      sync.Mutex
	courses []*model.Course

	ListPublishedCalls int

	FindByIDFunc      func(ctx context.Context, qx any, id string) (*model.Course, error)
	ListPublishedFunc func(ctx context.Context, qx any, limit int) ([]*model.Course, error)
	ListTrendingFunc  func(ctx context.Context, qx any, limit int) ([]*model.Course, error)
}

var _ repository.CourseRepository = (*MockCourseRepo)(nil)

func NewMockCourseRepo(courses ...*model.Course) *MockCourseRepo {
	return &MockCourseRepo{courses: courses}
}

func (m *MockCourseRepo) FindByID(ctx context.Context, qx any, id string) (*model.Course, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, qx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockCourseRepo) ListPublished(ctx context.Context, qx any, limit int) ([]*model.Course, error) {
	m.mu.Lock()
	m.ListPublishedCalls++
	m.mu.Unlock()
	if m.ListPublishedFunc != nil {
		return m.ListPublishedFunc(ctx, qx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Course
	for _, c := range m.courses {
		if len(out) >= limit {
			break
		}
		if c.Published {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockCourseRepo) ListTrending(ctx context.Context, qx any, limit int) ([]*model.Course, error) {
	if m.ListTrendingFunc != nil {
		return m.ListTrendingFunc(ctx, qx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Course
	for _, c := range m.courses {
		if len(out) >= limit {
			break
		}
		if c.Published {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockCourseRepo) MentorTotalStudents(ctx context.Context, qx any, mentorID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, c := range m.courses {
		if c.MentorID == mentorID {
			total += c.TotalStudents
		}
	}
	return total, nil
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo(users ...*model.User) *MockUserRepo {
	m := &MockUserRepo{users: make(map[string]*model.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *MockUserRepo) FindByID(ctx context.Context, qx any, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

// ---- Mock Review / Wishlist repositories ----

type MockReviewRepo struct {
	reviews []*model.Review
}

var _ repository.ReviewRepository = (*MockReviewRepo)(nil)

func (m *MockReviewRepo) ListByUser(ctx context.Context, qx any, userID string) ([]*model.Review, error) {
	var out []*model.Review
	for _, r := range m.reviews {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type MockWishlistRepo struct {
	items []*model.WishlistItem
}

var _ repository.WishlistRepository = (*MockWishlistRepo)(nil)

func (m *MockWishlistRepo) ListByUser(ctx context.Context, qx any, userID string) ([]*model.WishlistItem, error) {
	var out []*model.WishlistItem
	for _, w := range m.items {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu      sync.Mutex
	Created []adapter.CreateTransactionRequest

	CreateTransactionFunc  func(ctx context.Context, req adapter.CreateTransactionRequest) (*adapter.CreateTransactionResponse, error)
	VerifyNotificationFunc func(n *adapter.Notification) bool
	StatusOfFunc           func(ctx context.Context, orderID string) (string, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mockpay" }

func (m *MockPaymentGateway) CreateTransaction(ctx context.Context, req adapter.CreateTransactionRequest) (*adapter.CreateTransactionResponse, error) {
	m.mu.Lock()
	m.Created = append(m.Created, req)
	m.mu.Unlock()
	if m.CreateTransactionFunc != nil {
		return m.CreateTransactionFunc(ctx, req)
	}
	return &adapter.CreateTransactionResponse{
		Token:       "tok-" + req.OrderID,
		RedirectURL: "https://pay.example/redirect/" + req.OrderID,
	}, nil
}

func (m *MockPaymentGateway) VerifyNotification(n *adapter.Notification) bool {
	if m.VerifyNotificationFunc != nil {
		return m.VerifyNotificationFunc(n)
	}
	return true
}

func (m *MockPaymentGateway) StatusOf(ctx context.Context, orderID string) (string, error) {
	if m.StatusOfFunc != nil {
		return m.StatusOfFunc(ctx, orderID)
	}
	return "pending", nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs the function immediately without a real transaction. Assign
// WithTxFunc for tests that need to observe or fail the transactional path.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// ---- Mock RecommendationCache ----

type MockRecommendationCache struct {
	mu      sync.Mutex
	entries map[string][]model.ScoredCourse

	SetCalls        int
	InvalidateCalls int
	Disabled        bool // when true, Get always misses and Set is dropped
}

func NewMockRecommendationCache() *MockRecommendationCache {
	return &MockRecommendationCache{entries: make(map[string][]model.ScoredCourse)}
}

func (m *MockRecommendationCache) Get(userID string) ([]model.ScoredCourse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Disabled {
		return nil, false
	}
	items, ok := m.entries[userID]
	return items, ok
}

func (m *MockRecommendationCache) Set(userID string, items []model.ScoredCourse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls++
	if m.Disabled {
		return
	}
	m.entries[userID] = items
}

func (m *MockRecommendationCache) Invalidate(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InvalidateCalls++
	delete(m.entries, userID)
}
