package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hazz-dev/sitewatch/internal/probe"
	"github.com/hazz-dev/sitewatch/internal/status"
)

// StatusReader is the query surface the server exposes.
type StatusReader interface {
	Target() string
	Status() status.Current
	History(limit int) []probe.Outcome
}

// Options configures optional routes and middleware.
type Options struct {
	CORSOrigins []string     // empty disables CORS handling
	Metrics     http.Handler // mounted at /metrics when set
	Dashboard   http.Handler // mounted at / when set
}

// Server holds the chi router and its dependencies.
type Server struct {
	status StatusReader
	opts   Options
	router chi.Router
	logger *slog.Logger
}

// New creates a new Server and registers all routes.
func New(reader StatusReader, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		status: reader,
		opts:   opts,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/status", s.handleStatus)
	r.Get("/history", s.handleHistory)
	r.Get("/api/health", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	if s.opts.Dashboard != nil {
		r.Handle("/*", s.opts.Dashboard)
	}
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func latency(o probe.Outcome) *float64 {
	ms, ok := o.LatencyMs()
	if !ok {
		return nil
	}
	return &ms
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Status        string     `json:"status"`
	LastCheck     *time.Time `json:"last_check"`
	ResponseTime  *float64   `json:"response_time"`
	StatusCode    *int       `json:"status_code"`
	Error         *string    `json:"error"`
	Target        string     `json:"target"`
	UptimePercent float64    `json:"uptime_percent"`
}

// handleStatus always answers 200; a down target is a normal state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cur := s.status.Status()
	resp := statusResponse{
		Status: string(cur.State),
		Target: s.status.Target(),
	}
	if o := cur.Outcome; o != nil {
		t := o.CheckedAt
		resp.LastCheck = &t
		resp.ResponseTime = latency(*o)
		resp.StatusCode = optionalInt(o.StatusCode)
		resp.Error = optionalString(o.Error)
		resp.UptimePercent = cur.UptimePercent
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyItem struct {
	Timestamp    time.Time `json:"timestamp"`
	IsUp         bool      `json:"is_up"`
	ResponseTime *float64  `json:"response_time"`
	StatusCode   *int      `json:"status_code"`
	ErrorMessage *string   `json:"error_message"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	const maxLimit = 10000

	limit := status.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}

	outcomes := s.status.History(limit)
	items := make([]historyItem, 0, len(outcomes))
	for _, o := range outcomes {
		items = append(items, historyItem{
			Timestamp:    o.CheckedAt,
			IsUp:         o.Up,
			ResponseTime: latency(o),
			StatusCode:   optionalInt(o.StatusCode),
			ErrorMessage: optionalString(o.Error),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
