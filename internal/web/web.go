package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"remindhd/internal/calendar"
	"remindhd/internal/config"
	"remindhd/internal/driver"
	"remindhd/internal/indicator"
	appLog "remindhd/internal/log"
	"remindhd/internal/model"
)

// StatusProvider exposes the polling driver's state.
type StatusProvider interface {
	Snapshot() driver.State
}

// Options wires a Server. Metrics and Source may be nil, which disables
// /metrics and /api/events.
type Options struct {
	Listen    string
	BasicAuth *config.BasicAuthConfig
	Status    StatusProvider
	Source    calendar.Source
	// Window is the default /api/events range.
	Window   time.Duration
	Metrics  http.Handler
	Location *time.Location
}

// Server provides read-only HTTP APIs over the notifier's state.
type Server struct {
	opts   Options
	router chi.Router

	// In-memory cache for /api/events so page refreshes do not hit the
	// calendar API every time.
	eventsMu    sync.RWMutex
	eventsCache *eventsCache
}

const eventsCacheTTL = 30 * time.Second

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Window <= 0 {
		opts.Window = 10 * time.Minute
	}
	s := &Server{opts: opts}
	s.router = s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	// /health is always unauthenticated.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.basicAuthEnabled() {
			appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.opts.Listen)
			r.Use(s.basicAuthMiddleware)
		}
		r.Get("/api/status", s.handleStatus)
		if s.opts.Source != nil {
			r.Get("/api/events", s.handleEvents)
		}
		if s.opts.Metrics != nil {
			r.Handle("/metrics", s.opts.Metrics)
		}
	})
	return r
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials count as disabled.
func (s *Server) basicAuthEnabled() bool {
	ba := s.opts.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.opts.BasicAuth.Username
	password := s.opts.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="remindhd", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
		)
	})
}

// Run serves on opts.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.opts.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	Status              string     `json:"status,omitempty"`
	MinutesToNextEvent  *int       `json:"minutes_to_next_event,omitempty"`
	Summary             string     `json:"summary,omitempty"`
	Tier                string     `json:"tier,omitempty"`
	Baseline            string     `json:"baseline"`
	HasError            bool       `json:"has_error"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastPoll            *time.Time `json:"last_poll,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

// handleStatus returns the last evaluation and the driver's failure state.
// Fields describing the evaluation are absent until the first successful
// poll.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "status unavailable")
		return
	}
	st := s.opts.Status.Snapshot()

	resp := statusResponse{
		Baseline:            string(st.Baseline),
		HasError:            st.HasError,
		ConsecutiveFailures: st.ConsecutiveFailures,
		LastError:           st.LastError,
	}
	if !st.LastPoll.IsZero() {
		lp := st.LastPoll.In(s.opts.Location)
		resp.LastPoll = &lp
	}
	if r := st.LastResult; r != nil {
		minutes := r.MinutesToNextEvent
		resp.Status = string(r.Status)
		resp.MinutesToNextEvent = &minutes
		resp.Summary = r.Summary
		resp.Tier = string(indicator.TierFor(minutes))
	}
	writeJSON(w, http.StatusOK, resp)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Source     string     `json:"source"`
	Events     []eventDTO `json:"events"`
	RangeStart time.Time  `json:"range_start"`
	RangeEnd   time.Time  `json:"range_end"`
}

// eventsCache holds a cached /api/events response and its timestamp.
type eventsCache struct {
	minutes   int
	resp      eventsResponse
	updatedAt time.Time
}

// eventDTO is a JSON-friendly view of a calendar event.
type eventDTO struct {
	UID         string     `json:"uid,omitempty"`
	Summary     string     `json:"summary"`
	AllDay      bool       `json:"all_day"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Busy        bool       `json:"busy"`
	HasReminder bool       `json:"has_reminder"`
}

// handleEvents lists the raw events of the polling window as the calendar
// source returns them, before any filtering.
//
// GET /api/events?minutes=10
//   - minutes: window length from now (default: the search window)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	minutes := parseIntDefault(r.URL.Query().Get("minutes"), int(s.opts.Window/time.Minute))
	if minutes <= 0 {
		minutes = int(s.opts.Window / time.Minute)
	}

	s.eventsMu.RLock()
	ec := s.eventsCache
	s.eventsMu.RUnlock()
	if ec != nil && ec.minutes == minutes && time.Since(ec.updatedAt) < eventsCacheTTL {
		writeJSON(w, http.StatusOK, ec.resp)
		return
	}

	now := time.Now().In(s.opts.Location)
	end := now.Add(time.Duration(minutes) * time.Minute)
	events, err := s.opts.Source.Events(r.Context(), now, end)
	if err != nil {
		appLog.Error("api events: fetch failed", err, "source", s.opts.Source.Name())
		writeError(w, http.StatusBadGateway, "failed to fetch events")
		return
	}

	resp := eventsResponse{
		Source:     s.opts.Source.Name(),
		Events:     make([]eventDTO, 0, len(events)),
		RangeStart: now,
		RangeEnd:   end,
	}
	for _, ev := range events {
		resp.Events = append(resp.Events, toDTO(ev, s.opts.Location))
	}

	s.eventsMu.Lock()
	s.eventsCache = &eventsCache{minutes: minutes, resp: resp, updatedAt: time.Now()}
	s.eventsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func toDTO(ev model.CalendarEvent, loc *time.Location) eventDTO {
	dto := eventDTO{
		UID:         ev.UID,
		Summary:     ev.DisplaySummary(),
		AllDay:      ev.IsAllDay(),
		Busy:        ev.IsBusy(),
		HasReminder: ev.HasReminder(),
	}
	if ev.Start != nil {
		t := ev.Start.In(loc)
		dto.Start = &t
	}
	if ev.End != nil {
		t := ev.End.In(loc)
		dto.End = &t
	}
	return dto
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
