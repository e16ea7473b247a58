package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/TripPipe/internal/booking"
	"github.com/BTreeMap/TripPipe/internal/flow"
	"github.com/BTreeMap/TripPipe/internal/location"
	"github.com/BTreeMap/TripPipe/internal/nlu"
	"github.com/BTreeMap/TripPipe/internal/scheduler"
	"github.com/BTreeMap/TripPipe/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Modules carries the options for every component Run wires together.
type Modules struct {
	Store    []store.Option
	Location []location.Option
	Booking  []booking.Option
	Flow     []flow.Option
	Session  []flow.SessionOption
	NLU      []nlu.Option
	API      []Option
}

// Run builds all components, serves HTTP and blocks until SIGINT or SIGTERM.
func Run(m Modules) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(m.Store...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("api.Run: store close failed", "error", err)
		}
	}()

	resolver, err := location.NewCatalogResolver(st, m.Location...)
	if err != nil {
		return fmt.Errorf("failed to create location resolver: %w", err)
	}

	services, err := booking.NewServices(m.Booking...)
	if err != nil {
		return fmt.Errorf("failed to create booking services: %w", err)
	}
	defer services.Close()

	ctrl, err := flow.NewController(flow.Dependencies{
		Preferences: st,
		Ledger:      st,
		Resolver:    resolver,
		Flights:     services.Flights,
		Cars:        services.Cars,
	}, m.Flow...)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	timer := flow.NewSimpleTimer()
	defer timer.Stop()
	sessions := flow.NewSessionManager(ctrl, timer, st, m.Session...)

	sched := scheduler.NewScheduler()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	apiOpts := append([]Option{WithTimers(timer), WithJobs(sched)}, m.API...)
	client, err := nlu.NewClient(m.NLU...)
	switch {
	case errors.Is(err, nlu.ErrMissingAPIKey):
		slog.Info("api.Run: no OpenAI key, raw text endpoint disabled")
	case err != nil:
		return fmt.Errorf("failed to create NLU client: %w", err)
	default:
		apiOpts = append(apiOpts, WithParser(nlu.NewOpenAIParser(client)))
	}

	srv := NewServer(sessions, st, st, apiOpts...)

	janitor := store.NewJanitor(st, srv.dedupRetention)
	janitor.Prune()
	if err := sched.AddJob("dedup janitor", srv.janitorSchedule, func() { janitor.Prune() }); err != nil {
		return fmt.Errorf("failed to schedule dedup janitor: %w", err)
	}

	httpServer := &http.Server{
		Addr:              srv.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", srv.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("api.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("api.Run: stopped", "sessions", sessions.Count())
	return nil
}
