package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"livein/internal/budget"
	"livein/internal/cache"
	"livein/internal/chat"
	"livein/internal/core"
	"livein/internal/services"
	"livein/internal/storage"
	"livein/internal/stream"
)

type Server struct {
	http.Server
	transactions *services.TransactionService
	storage      *storage.SQLiteRepository
	broadcaster  *stream.Broadcaster
	household    core.Household
	rateLimiter  *rateLimiter

	// Summaries are cheap to compute but read on every dashboard poll;
	// a short TTL keeps repeated reads off SQLite.
	summaryCache *cache.LRUCache[budget.Summary]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, txService *services.TransactionService, repo *storage.SQLiteRepository, broadcaster *stream.Broadcaster, chatService *services.ChatService, household core.Household) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		transactions:     txService,
		storage:          repo,
		broadcaster:      broadcaster,
		household:        household,
		rateLimiter:      newRateLimiter(),
		summaryCache:     cache.NewLRUCache[budget.Summary](100, 30*time.Second),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/api/login", s.withMiddleware(s.handleLogin))
	mux.HandleFunc("/api/transactions", s.withMiddleware(s.handleTransactions))
	mux.HandleFunc("/api/transactions/", s.withMiddleware(s.handleTransactionByID))
	mux.HandleFunc("/api/dashboard", s.withMiddleware(s.handleDashboard))
	mux.HandleFunc("/api/analytics", s.withMiddleware(s.handleAnalytics))
	mux.HandleFunc("/api/reports", s.withMiddleware(s.handleReports))
	mux.HandleFunc("/api/reports/export", s.withMiddleware(s.handleReportsExport))
	mux.HandleFunc("/api/allocations", s.withMiddleware(s.handleAllocations))
	mux.HandleFunc("/api/devices", s.withMiddleware(s.handleRegisterDevice))
	mux.HandleFunc("/api/stream", s.withMiddleware(s.handleStream))

	if chatService != nil {
		mux.Handle("/ws/chat", chat.NewHandler(chat.NewHub(), chatService, household))
	}

	return s
}

// withMiddleware adds security headers, rate limiting, request IDs and
// request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		// Rate limit mutations only; dashboard polling stays free.
		if mutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
// Flush is forwarded so the SSE handler keeps working behind the wrapper.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.summaryCache.CleanExpired(); cleaned > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateSummaries drops every cached summary for the household. Any
// write can shift totals in both timeframes and for both members.
func (s *Server) invalidateSummaries() {
	s.summaryCache.DeletePrefix(s.household.ID() + "/")
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Ping(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
