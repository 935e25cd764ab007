package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"course-marketplace/internal/domain"
	"course-marketplace/internal/domain/model"
	"course-marketplace/internal/domain/ports/adapter"
	"course-marketplace/internal/domain/ports/repository"
	"course-marketplace/internal/infra/metrics"
)

type createTransactionRequest struct {
	CourseID      string `json:"course_id"`
	PaymentMethod string `json:"payment_method"`
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// transactionView is the wire shape of a transaction. The domain struct stays
// tag-free so the API contract is owned here.
type transactionView struct {
	ID            string                  `json:"id"`
	OrderID       string                  `json:"order_id"`
	UserID        string                  `json:"user_id"`
	CourseID      string                  `json:"course_id"`
	Amount        int64                   `json:"amount"`
	Discount      int64                   `json:"discount"`
	TotalAmount   int64                   `json:"total_amount"`
	PaymentMethod string                  `json:"payment_method"`
	Status        model.TransactionStatus `json:"status"`
	PaymentURL    string                  `json:"payment_url,omitempty"`
	Meta          model.TransactionMeta   `json:"meta"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	PaidAt        *time.Time              `json:"paid_at,omitempty"`
	ExpiresAt     time.Time               `json:"expires_at"`
	RefundedAt    *time.Time              `json:"refunded_at,omitempty"`
}

func viewOf(t *model.Transaction) transactionView {
	return transactionView{
		ID:            t.ID,
		OrderID:       t.OrderID,
		UserID:        t.UserID,
		CourseID:      t.CourseID,
		Amount:        t.Amount,
		Discount:      t.Discount,
		TotalAmount:   t.TotalAmount,
		PaymentMethod: t.PaymentMethod,
		Status:        t.Status,
		PaymentURL:    t.PaymentURL,
		Meta:          t.Meta,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		PaidAt:        t.PaidAt,
		ExpiresAt:     t.ExpiresAt,
		RefundedAt:    t.RefundedAt,
	}
}

type recommendationView struct {
	CourseID      string  `json:"course_id"`
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	Level         string  `json:"level"`
	Price         int64   `json:"price"`
	DiscountPrice *int64  `json:"discount_price,omitempty"`
	AverageRating float64 `json:"average_rating"`
	TotalStudents int     `json:"total_students"`
	Score         float64 `json:"score"`
	Reason        string  `json:"reason"`
}

func recommendationViews(items []model.ScoredCourse) []recommendationView {
	out := make([]recommendationView, 0, len(items))
	for _, sc := range items {
		out = append(out, recommendationView{
			CourseID:      sc.Course.ID,
			Title:         sc.Course.Title,
			Category:      sc.Course.Category,
			Level:         string(sc.Course.Level),
			Price:         sc.Course.Price,
			DiscountPrice: sc.Course.DiscountPrice,
			AverageRating: sc.Course.AverageRating,
			TotalStudents: sc.Course.TotalStudents,
			Score:         sc.Score,
			Reason:        sc.Reason,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain sentinels onto HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeErrMsg(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		writeErrMsg(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeErrMsg(w, http.StatusConflict, err.Error())
	default:
		writeErrMsg(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) createTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeErrMsg(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrMsg(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.txUC.Create(r.Context(), userID, req.CourseID, req.PaymentMethod)
	if err != nil {
		writeErr(w, err)
		return
	}
	metrics.IncTransaction(string(resp.Status))
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) getTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeErrMsg(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	scope := &userID
	if role, _ := Role(r.Context()); role == model.UserRoleAdmin {
		scope = nil // admins can read any transaction
	}

	txn, err := s.txUC.GetByID(r.Context(), chi.URLParam(r, "id"), scope)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(txn))
}

func (s *Server) getTransactionByOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeErrMsg(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	scope := &userID
	if role, _ := Role(r.Context()); role == model.UserRoleAdmin {
		scope = nil
	}

	txn, err := s.txUC.GetByOrderID(r.Context(), chi.URLParam(r, "orderID"), scope)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(txn))
}

func (s *Server) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeErrMsg(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var f repository.TransactionListFilter
	f.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	f.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if v := r.URL.Query().Get("status"); v != "" {
		st := model.TransactionStatus(v)
		f.Status = &st
	}

	txns, total, err := s.txUC.ListByUser(r.Context(), userID, f)
	if err != nil {
		writeErr(w, err)
		return
	}

	data := make([]transactionView, 0, len(txns))
	for _, t := range txns {
		data = append(data, viewOf(t))
	}
	writeJSON(w, http.StatusOK, struct {
		Data  []transactionView `json:"data"`
		Total int               `json:"total"`
	}{Data: data, Total: total})
}

func (s *Server) cancelTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeErrMsg(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	txn, err := s.txUC.Cancel(r.Context(), chi.URLParam(r, "id"), &userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	metrics.IncTransaction(string(txn.Status))
	writeJSON(w, http.StatusOK, viewOf(txn))
}

func (s *Server) refundTransactionHandler(w http.ResponseWriter, r *http.Request) {
	adminID, _ := UserID(r.Context())

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrMsg(w, http.StatusBadRequest, "invalid request body")
		return
	}

	txn, err := s.txUC.Refund(r.Context(), chi.URLParam(r, "id"), req.Reason, adminID)
	if err != nil {
		writeErr(w, err)
		return
	}
	metrics.IncTransaction(string(txn.Status))
	writeJSON(w, http.StatusOK, viewOf(txn))
}

// webhookHandler acknowledges gateway notifications. Business-level rejects
// still answer 200 so the gateway stops retrying; only a bad signature (401)
// and transient store failures (500) are surfaced as errors.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	var n adapter.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		metrics.IncWebhook("malformed")
		writeErrMsg(w, http.StatusBadRequest, "invalid notification body")
		return
	}

	res := s.txUC.ProcessWebhook(r.Context(), &n)
	switch {
	case res.OK:
		// Replays are acknowledged but counted separately and never move
		// the transaction or revenue counters.
		if res.Message == "processed" {
			metrics.IncWebhook("processed")
			metrics.IncTransaction(string(res.Status))
			if res.Status == model.TransactionStatusPaid {
				metrics.AddRevenue(res.Amount)
			}
		} else {
			metrics.IncWebhook("replayed")
		}
		writeJSON(w, http.StatusOK, res)
	case res.Message == "invalid signature":
		metrics.IncWebhook("invalid_signature")
		writeJSON(w, http.StatusUnauthorized, res)
	case res.Message == "unknown order":
		// Acknowledged so the gateway does not retry an order that will
		// never exist on this side.
		metrics.IncWebhook("unknown_order")
		writeJSON(w, http.StatusOK, res)
	default:
		metrics.IncWebhook("failed")
		writeJSON(w, http.StatusInternalServerError, res)
	}
}

func limitParam(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (s *Server) recommendationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeErrMsg(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	items, err := s.recUC.PersonalizedFor(r.Context(), userID, limitParam(r, 10, 50))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []recommendationView `json:"data"`
	}{Data: recommendationViews(items)})
}

func (s *Server) similarCoursesHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.recUC.SimilarTo(r.Context(), chi.URLParam(r, "id"), limitParam(r, 10, 50))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []recommendationView `json:"data"`
	}{Data: recommendationViews(items)})
}

func (s *Server) adminStatsHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	allTime, err := s.statsUC.Totals(r.Context(), time.Time{}, now)
	if err != nil {
		writeErr(w, err)
		return
	}
	month, err := s.statsUC.MonthTotals(r.Context(), now)
	if err != nil {
		writeErr(w, err)
		return
	}

	type statsView struct {
		CountByStatus  map[model.TransactionStatus]int `json:"count_by_status"`
		Revenue        int64                           `json:"revenue"`
		RefundedAmount int64                           `json:"refunded_amount"`
	}
	writeJSON(w, http.StatusOK, struct {
		AllTime statsView `json:"all_time"`
		Month   statsView `json:"month"`
	}{
		AllTime: statsView{allTime.CountByStatus, allTime.Revenue, allTime.RefundedAmount},
		Month:   statsView{month.CountByStatus, month.Revenue, month.RefundedAmount},
	})
}
