// Package api exposes the TripPipe dialogue engine over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BTreeMap/TripPipe/internal/flow"
	"github.com/BTreeMap/TripPipe/internal/nlu"
	"github.com/BTreeMap/TripPipe/internal/scheduler"
	"github.com/BTreeMap/TripPipe/internal/store"
)

const (
	// DefaultServerAddr is the listen address when none is configured.
	DefaultServerAddr = ":8080"
	// DefaultRequestTimeout bounds the handling of one turn.
	DefaultRequestTimeout = 30 * time.Second
)

// TimerInspector lists the timers the session manager has scheduled.
type TimerInspector interface {
	ListActive() []flow.TimerInfo
	GetTimer(id string) (*flow.TimerInfo, error)
}

// JobLister lists the periodic maintenance jobs.
type JobLister interface {
	Jobs() []scheduler.JobInfo
}

// Opts holds configuration for the HTTP server.
type Opts struct {
	Addr           string
	RequestTimeout time.Duration
	RatePerSec     float64 // per client IP; zero disables limiting
	RateBurst      int
	DedupRetention time.Duration
	JanitorSpec    string // cron spec for dedup pruning
	Parser         nlu.Parser
	Timers         TimerInspector
	Jobs           JobLister
}

// Option defines a configuration option for the HTTP server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithRequestTimeout bounds how long a single turn may take.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.RequestTimeout = d
	}
}

// WithRateLimit limits requests per client IP.
func WithRateLimit(perSec float64, burst int) Option {
	return func(o *Opts) {
		o.RatePerSec = perSec
		o.RateBurst = burst
	}
}

// WithDedupRetention sets how long turn ids are remembered for deduplication.
func WithDedupRetention(d time.Duration) Option {
	return func(o *Opts) {
		o.DedupRetention = d
	}
}

// WithJanitorSchedule sets the cron spec the dedup janitor runs on.
func WithJanitorSchedule(spec string) Option {
	return func(o *Opts) {
		o.JanitorSpec = spec
	}
}

// WithJobs exposes scheduled maintenance jobs on /jobs.
func WithJobs(j JobLister) Option {
	return func(o *Opts) {
		o.Jobs = j
	}
}

// WithParser enables the raw text endpoint.
func WithParser(p nlu.Parser) Option {
	return func(o *Opts) {
		o.Parser = p
	}
}

// WithTimers exposes scheduled timers on /timers.
func WithTimers(t TimerInspector) Option {
	return func(o *Opts) {
		o.Timers = t
	}
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	sessions        *flow.SessionManager
	prefs           store.PreferenceStore
	ledger          store.BookingLedger
	parser          nlu.Parser
	timers          TimerInspector
	jobs            JobLister
	validate        *validator.Validate
	limiter         *ipLimiter
	addr            string
	requestTimeout  time.Duration
	dedupRetention  time.Duration
	janitorSchedule string
}

// NewServer creates a Server on top of a session manager and the stores it reads.
func NewServer(sessions *flow.SessionManager, prefs store.PreferenceStore, ledger store.BookingLedger, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultServerAddr, RequestTimeout: DefaultRequestTimeout, JanitorSpec: store.DefaultJanitorSchedule}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.JanitorSpec == "" {
		cfg.JanitorSpec = store.DefaultJanitorSchedule
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		sessions:        sessions,
		prefs:           prefs,
		ledger:          ledger,
		parser:          cfg.Parser,
		timers:          cfg.Timers,
		jobs:            cfg.Jobs,
		validate:        validate,
		addr:            cfg.Addr,
		requestTimeout:  cfg.RequestTimeout,
		dedupRetention:  cfg.DedupRetention,
		janitorSchedule: cfg.JanitorSpec,
	}
	if cfg.RatePerSec > 0 {
		s.limiter = newIPLimiter(cfg.RatePerSec, cfg.RateBurst)
	}
	slog.Debug("Server created", "addr", cfg.Addr, "parser", cfg.Parser != nil,
		"timers", cfg.Timers != nil, "ratePerSec", cfg.RatePerSec)
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/turns", s.turnHandler)
	mux.HandleFunc("POST /sessions/{id}/messages", s.messageHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.endSessionHandler)
	mux.HandleFunc("GET /users/{id}/preferences", s.listPreferencesHandler)
	mux.HandleFunc("GET /users/{id}/preferences/{key}", s.getPreferenceHandler)
	mux.HandleFunc("PUT /users/{id}/preferences/{key}", s.setPreferenceHandler)
	mux.HandleFunc("DELETE /users/{id}/preferences/{key}", s.deletePreferenceHandler)
	mux.HandleFunc("GET /users/{id}/bookings", s.listBookingsHandler)
	mux.HandleFunc("GET /timers", s.listTimersHandler)
	mux.HandleFunc("GET /timers/{id}", s.getTimerHandler)
	mux.HandleFunc("GET /jobs", s.listJobsHandler)
	mux.HandleFunc("GET /healthz", s.healthHandler)

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.middleware(h)
	}
	return logRequests(h)
}
