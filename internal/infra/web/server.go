package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"course-marketplace/internal/infra/logging"
	"course-marketplace/internal/infra/redis"
	"course-marketplace/internal/usecase"
)

// Limiter is what the webhook route needs from the redis rate limiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	txUC    usecase.TransactionUseCase
	recUC   usecase.RecommendationUseCase
	statsUC usecase.StatsUseCase
	auth    *AuthMiddleware
	limiter Limiter

	webhookLimit int // requests per source per minute; 0 disables limiting
	log          *zerolog.Logger
}

func NewServer(
	txUC usecase.TransactionUseCase,
	recUC usecase.RecommendationUseCase,
	statsUC usecase.StatsUseCase,
	auth *AuthMiddleware,
	limiter Limiter,
	webhookLimit int,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		txUC:         txUC,
		recUC:        recUC,
		statsUC:      statsUC,
		auth:         auth,
		limiter:      limiter,
		webhookLimit: webhookLimit,
		log:          &l,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Gateway callbacks carry their own signature; no bearer token.
		r.With(s.rateLimitWebhook).Post("/payments/webhook", s.webhookHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Auth)

			r.Post("/transactions", s.createTransactionHandler)
			r.Get("/transactions", s.listTransactionsHandler)
			r.Get("/transactions/{id}", s.getTransactionHandler)
			r.Get("/transactions/order/{orderID}", s.getTransactionByOrderHandler)
			r.Post("/transactions/{id}/cancel", s.cancelTransactionHandler)

			r.Get("/recommendations", s.recommendationsHandler)
			r.Get("/courses/{id}/similar", s.similarCoursesHandler)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/transactions/{id}/refund", s.refundTransactionHandler)
				r.Get("/admin/stats", s.adminStatsHandler)
			})
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

// rateLimitWebhook caps notification bursts per source address. A limiter
// outage fails open so a redis blip never blocks payment confirmations.
func (s *Server) rateLimitWebhook(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.webhookLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := redis.WebhookSourceKey(r.RemoteAddr)
		ok, err := s.limiter.Allow(r.Context(), key, s.webhookLimit, time.Minute)
		if err != nil {
			s.log.Warn().Err(err).Msg("webhook rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			writeErrMsg(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
