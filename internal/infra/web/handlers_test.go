package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"course-marketplace/internal/domain"
	"course-marketplace/internal/domain/model"
	"course-marketplace/internal/domain/ports/adapter"
	"course-marketplace/internal/domain/ports/repository"
	"course-marketplace/internal/infra/metrics"
	"course-marketplace/internal/usecase"
)

// metricValue scrapes the /metrics endpoint for one sample line. Returns 0
// when the series has not been observed yet.
func metricValue(t *testing.T, router http.Handler, series string) float64 {
	t.Helper()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	for _, line := range strings.Split(rr.Body.String(), "\n") {
		if strings.HasPrefix(line, series+" ") {
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, series)), 64)
			if err != nil {
				t.Fatalf("parse metric %q: %v", line, err)
			}
			return v
		}
	}
	return 0
}

func webhookBody(t *testing.T, orderID, status string) io.Reader {
	t.Helper()
	b, err := json.Marshal(adapter.Notification{
		OrderID:           orderID,
		TransactionStatus: status,
		StatusCode:        "200",
		GrossAmount:       "150000.00",
	})
	if err != nil {
		t.Fatalf("marshal notification: %v", err)
	}
	return bytes.NewReader(b)
}

func authedRequest(t *testing.T, method, target string, body io.Reader, userID string, role model.UserRole) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID, role))
	return req
}

func TestCreateTransactionHandler(t *testing.T) {
	txUC := &mockTxUC{}
	srv := newTestServer(txUC, nil, nil, nil)
	router := srv.Router()

	t.Run("success returns 201 with payment url", func(t *testing.T) {
		txUC.CreateFunc = func(ctx context.Context, userID, courseID, paymentMethod string) (*usecase.PaymentResponse, error) {
			if userID != "user-1" {
				t.Errorf("expected user id from token, got %q", userID)
			}
			return &usecase.PaymentResponse{
				OrderID:       "01J8ZQ",
				TransactionID: "tx-1",
				PaymentURL:    "https://pay.example/redirect/abc",
				Status:        model.TransactionStatusPending,
				Amount:        150000,
				ExpiresAt:     time.Now().Add(24 * time.Hour),
			}, nil
		}

		body := strings.NewReader(`{"course_id":"course-1","payment_method":"snap"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "POST", "/api/v1/transactions", body, "user-1", model.UserRoleStudent))

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp usecase.PaymentResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.PaymentURL == "" || resp.OrderID != "01J8ZQ" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("invalid body returns 400", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "POST", "/api/v1/transactions", strings.NewReader("{"), "user-1", model.UserRoleStudent))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("free course returns 400", func(t *testing.T) {
		txUC.CreateFunc = func(ctx context.Context, userID, courseID, paymentMethod string) (*usecase.PaymentResponse, error) {
			return nil, fmt.Errorf("%w: free course has no payment flow", domain.ErrValidation)
		}
		body := strings.NewReader(`{"course_id":"free-course","payment_method":"snap"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "POST", "/api/v1/transactions", body, "user-1", model.UserRoleStudent))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("already enrolled returns 409", func(t *testing.T) {
		txUC.CreateFunc = func(ctx context.Context, userID, courseID, paymentMethod string) (*usecase.PaymentResponse, error) {
			return nil, fmt.Errorf("%w: user already enrolled in course", domain.ErrConflict)
		}
		body := strings.NewReader(`{"course_id":"course-1","payment_method":"snap"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "POST", "/api/v1/transactions", body, "user-1", model.UserRoleStudent))
		if rr.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rr.Code)
		}
	})

	t.Run("unknown course returns 404", func(t *testing.T) {
		txUC.CreateFunc = func(ctx context.Context, userID, courseID, paymentMethod string) (*usecase.PaymentResponse, error) {
			return nil, domain.ErrNotFound
		}
		body := strings.NewReader(`{"course_id":"missing","payment_method":"snap"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "POST", "/api/v1/transactions", body, "user-1", model.UserRoleStudent))
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})
}

func TestGetTransactionHandler(t *testing.T) {
	now := time.Now()
	stored := &model.Transaction{
		ID:       "tx-1",
		OrderID:  "01J8ZQ",
		UserID:   "user-1",
		CourseID: "course-1",
		Status:   model.TransactionStatusPaid,
		PaidAt:   &now,
	}
	txUC := &mockTxUC{
		GetByIDFunc: func(ctx context.Context, id string, userID *string) (*model.Transaction, error) {
			if id != stored.ID {
				return nil, domain.ErrNotFound
			}
			if userID != nil && *userID != stored.UserID {
				return nil, domain.ErrNotFound
			}
			return stored, nil
		},
	}
	srv := newTestServer(txUC, nil, nil, nil)
	router := srv.Router()

	t.Run("owner can read", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "GET", "/api/v1/transactions/tx-1", nil, "user-1", model.UserRoleStudent))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp transactionView
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.OrderID != "01J8ZQ" || resp.Status != model.TransactionStatusPaid {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("other user gets 404", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "GET", "/api/v1/transactions/tx-1", nil, "user-2", model.UserRoleStudent))
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("admin reads any", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "GET", "/api/v1/transactions/tx-1", nil, "admin-1", model.UserRoleAdmin))
		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})
}

func TestListTransactionsHandler(t *testing.T) {
	txUC := &mockTxUC{
		ListByUserFunc: func(ctx context.Context, userID string, f repository.TransactionListFilter) ([]*model.Transaction, int, error) {
			if f.Status == nil || *f.Status != model.TransactionStatusPaid {
				t.Errorf("expected status filter PAID, got %v", f.Status)
			}
			if f.Page != 2 || f.Limit != 5 {
				t.Errorf("expected page=2 limit=5, got page=%d limit=%d", f.Page, f.Limit)
			}
			return []*model.Transaction{{ID: "tx-1", UserID: userID}}, 12, nil
		},
	}
	srv := newTestServer(txUC, nil, nil, nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, authedRequest(t, "GET", "/api/v1/transactions?status=PAID&page=2&limit=5", nil, "user-1", model.UserRoleStudent))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Data  []transactionView `json:"data"`
		Total int               `json:"total"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Data) != 1 || resp.Total != 12 {
		t.Errorf("unexpected list response: %+v", resp)
	}
}

func TestCancelTransactionHandler(t *testing.T) {
	txUC := &mockTxUC{
		CancelFunc: func(ctx context.Context, id string, userID *string) (*model.Transaction, error) {
			if id == "tx-paid" {
				return nil, fmt.Errorf("%w: only pending transactions can be cancelled, current status PAID", domain.ErrValidation)
			}
			return &model.Transaction{ID: id, UserID: *userID, Status: model.TransactionStatusCancelled}, nil
		},
	}
	srv := newTestServer(txUC, nil, nil, nil)
	router := srv.Router()

	t.Run("pending cancelled", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "POST", "/api/v1/transactions/tx-1/cancel", nil, "user-1", model.UserRoleStudent))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp transactionView
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Status != model.TransactionStatusCancelled {
			t.Errorf("expected CANCELLED, got %s", resp.Status)
		}
	})

	t.Run("paid not cancellable", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "POST", "/api/v1/transactions/tx-paid/cancel", nil, "user-1", model.UserRoleStudent))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestRefundTransactionHandler(t *testing.T) {
	txUC := &mockTxUC{
		RefundFunc: func(ctx context.Context, id, reason, adminID string) (*model.Transaction, error) {
			if reason == "" {
				return nil, fmt.Errorf("%w: refund reason is required", domain.ErrValidation)
			}
			return &model.Transaction{ID: id, Status: model.TransactionStatusRefunded}, nil
		},
	}
	srv := newTestServer(txUC, nil, nil, nil)
	router := srv.Router()

	t.Run("student forbidden", func(t *testing.T) {
		body := strings.NewReader(`{"reason":"course withdrawn"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "POST", "/api/v1/transactions/tx-1/refund", body, "user-1", model.UserRoleStudent))
		if rr.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("admin refunds", func(t *testing.T) {
		body := strings.NewReader(`{"reason":"course withdrawn"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "POST", "/api/v1/transactions/tx-1/refund", body, "admin-1", model.UserRoleAdmin))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp transactionView
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Status != model.TransactionStatusRefunded {
			t.Errorf("expected REFUNDED, got %s", resp.Status)
		}
	})

	t.Run("missing reason rejected", func(t *testing.T) {
		body := strings.NewReader(`{}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "POST", "/api/v1/transactions/tx-1/refund", body, "admin-1", model.UserRoleAdmin))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestWebhookHandler(t *testing.T) {
	srv := newTestServer(&mockTxUC{}, nil, nil, nil)

	run := func(t *testing.T, res usecase.WebhookResult, wantCode int) {
		t.Helper()
		txUC := &mockTxUC{
			ProcessWebhookFunc: func(ctx context.Context, n *adapter.Notification) usecase.WebhookResult {
				return res
			},
		}
		srv := newTestServer(txUC, nil, nil, nil)
		req := httptest.NewRequest("POST", "/api/v1/payments/webhook", webhookBody(t, "ORDER-1", "settlement"))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)
		if rr.Code != wantCode {
			t.Errorf("expected %d, got %d: %s", wantCode, rr.Code, rr.Body.String())
		}
	}

	t.Run("processed", func(t *testing.T) {
		run(t, usecase.WebhookResult{OK: true, Message: "processed", Status: model.TransactionStatusPaid, Amount: 150000}, http.StatusOK)
	})
	t.Run("replay acknowledged", func(t *testing.T) {
		metrics.MustRegister()
		router := srv.Router()
		replayedBefore := metricValue(t, router, `payment_webhooks_total{outcome="replayed"}`)
		paidBefore := metricValue(t, router, `transactions_total{status="paid"}`)
		revenueBefore := metricValue(t, router, `transactions_revenue_total`)

		run(t, usecase.WebhookResult{OK: true, Message: "already processed", Status: model.TransactionStatusPaid, Amount: 150000}, http.StatusOK)

		if got := metricValue(t, router, `payment_webhooks_total{outcome="replayed"}`); got != replayedBefore+1 {
			t.Errorf("expected replayed outcome counted: %v -> %v", replayedBefore, got)
		}
		if got := metricValue(t, router, `transactions_total{status="paid"}`); got != paidBefore {
			t.Errorf("replay must not move the paid counter: %v -> %v", paidBefore, got)
		}
		if got := metricValue(t, router, `transactions_revenue_total`); got != revenueBefore {
			t.Errorf("replay must not move revenue: %v -> %v", revenueBefore, got)
		}
	})
	t.Run("invalid signature", func(t *testing.T) {
		run(t, usecase.WebhookResult{OK: false, Message: "invalid signature"}, http.StatusUnauthorized)
	})
	t.Run("unknown order acknowledged", func(t *testing.T) {
		run(t, usecase.WebhookResult{OK: false, Message: "unknown order"}, http.StatusOK)
	})
	t.Run("store failure", func(t *testing.T) {
		run(t, usecase.WebhookResult{OK: false, Message: "status update failed"}, http.StatusInternalServerError)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/payments/webhook", strings.NewReader("not-json"))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("no auth required", func(t *testing.T) {
		txUC := &mockTxUC{
			ProcessWebhookFunc: func(ctx context.Context, n *adapter.Notification) usecase.WebhookResult {
				return usecase.WebhookResult{OK: true, Message: "processed", Status: model.TransactionStatusPending}
			},
		}
		srv := newTestServer(txUC, nil, nil, nil)
		req := httptest.NewRequest("POST", "/api/v1/payments/webhook", webhookBody(t, "ORDER-1", "pending"))
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("expected 200 without bearer token, got %d", rr.Code)
		}
	})
}

func TestRecommendationsHandler(t *testing.T) {
	recUC := &mockRecUC{
		PersonalizedForFunc: func(ctx context.Context, userID string, limit int) ([]model.ScoredCourse, error) {
			if limit != 3 {
				t.Errorf("expected limit 3, got %d", limit)
			}
			return []model.ScoredCourse{
				{Course: &model.Course{ID: "c-1", Title: "Go Basics", Category: "programming"}, Score: 42, Reason: "Matches your interest in programming"},
			}, nil
		},
	}
	srv := newTestServer(nil, recUC, nil, nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, authedRequest(t, "GET", "/api/v1/recommendations?limit=3", nil, "user-1", model.UserRoleStudent))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Data []recommendationView `json:"data"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Data) != 1 || resp.Data[0].CourseID != "c-1" || resp.Data[0].Score != 42 {
		t.Errorf("unexpected recommendations: %+v", resp.Data)
	}
}

func TestSimilarCoursesHandler(t *testing.T) {
	recUC := &mockRecUC{
		SimilarToFunc: func(ctx context.Context, courseID string, limit int) ([]model.ScoredCourse, error) {
			if courseID != "c-1" {
				return nil, domain.ErrNotFound
			}
			return []model.ScoredCourse{
				{Course: &model.Course{ID: "c-2", Title: "Go Advanced"}, Score: 18, Reason: "Similar topic"},
			}, nil
		},
	}
	srv := newTestServer(nil, recUC, nil, nil)
	router := srv.Router()

	t.Run("found", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "GET", "/api/v1/courses/c-1/similar", nil, "user-1", model.UserRoleStudent))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("unknown course", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(t, "GET", "/api/v1/courses/missing/similar", nil, "user-1", model.UserRoleStudent))
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})
}

func TestAdminStatsHandler(t *testing.T) {
	statsUC := &mockStatsUC{
		TotalsFunc: func(ctx context.Context, from, to time.Time) (*repository.TransactionStats, error) {
			return &repository.TransactionStats{
				CountByStatus: map[model.TransactionStatus]int{model.TransactionStatusPaid: 7},
				Revenue:       1050000,
			}, nil
		},
	}
	srv := newTestServer(nil, nil, statsUC, nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, authedRequest(t, "GET", "/api/v1/admin/stats", nil, "admin-1", model.UserRoleAdmin))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		AllTime struct {
			CountByStatus map[string]int `json:"count_by_status"`
			Revenue       int64          `json:"revenue"`
		} `json:"all_time"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.AllTime.Revenue != 1050000 || resp.AllTime.CountByStatus["PAID"] != 7 {
		t.Errorf("unexpected stats: %+v", resp)
	}
}
