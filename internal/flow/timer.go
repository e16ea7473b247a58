package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrTimerNotFound is returned by GetTimer for an unknown or already fired timer.
	ErrTimerNotFound = errors.New("timer not found")
	// ErrTimerStopped is returned when scheduling on a stopped SimpleTimer.
	ErrTimerStopped = errors.New("timer stopped")
)

// TimerInfo describes a scheduled timer.
type TimerInfo struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Remaining   string    `json:"remaining"`
	Description string    `json:"description"`
}

type pendingCall struct {
	timer       *time.Timer
	scheduledAt time.Time
	expiresAt   time.Time
	description string
}

func (p *pendingCall) info(id string, now time.Time) TimerInfo {
	left := p.expiresAt.Sub(now)
	if left < 0 {
		left = 0
	}
	return TimerInfo{
		ID:          id,
		ScheduledAt: p.scheduledAt,
		ExpiresAt:   p.expiresAt,
		Remaining:   left.Round(time.Millisecond).String(),
		Description: p.description,
	}
}

// SimpleTimer runs one-shot callbacks on time.AfterFunc and keeps a listing of
// the ones still pending. Session idle expiry and selection holds run on it.
type SimpleTimer struct {
	mu      sync.RWMutex
	pending map[string]*pendingCall
	seq     uint64
	stopped bool
}

// NewSimpleTimer creates a running SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{pending: make(map[string]*pendingCall)}
}

// ScheduleAfter runs fn once after delay.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	return t.ScheduleNamed(delay, "after "+delay.String(), fn)
}

// ScheduleNamed is ScheduleAfter with a description shown by ListActive.
func (t *SimpleTimer) ScheduleNamed(delay time.Duration, description string, fn func()) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("schedule %q: nil function", description)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return "", ErrTimerStopped
	}
	t.seq++
	id := "timer_" + strconv.FormatUint(t.seq, 10)
	now := time.Now()
	call := &pendingCall{scheduledAt: now, expiresAt: now.Add(delay), description: description}
	// The lock is still held, so even a zero delay finds the entry registered.
	call.timer = time.AfterFunc(delay, func() {
		if !t.claim(id, call) {
			return
		}
		slog.Debug("SimpleTimer: firing", "id", id, "description", description)
		fn()
	})
	t.pending[id] = call

	slog.Debug("SimpleTimer.ScheduleNamed", "id", id, "delay", delay, "description", description)
	return id, nil
}

// claim removes a due call. It fails when the call was cancelled after its
// timer had already started firing.
func (t *SimpleTimer) claim(id string, call *pendingCall) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[id] != call {
		return false
	}
	delete(t.pending, id)
	return true
}

// Cancel drops a pending call. Unknown ids are ignored.
func (t *SimpleTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.pending[id]
	if !ok {
		return nil
	}
	call.timer.Stop()
	delete(t.pending, id)
	slog.Debug("SimpleTimer.Cancel", "id", id)
	return nil
}

// Stop cancels everything pending and refuses new calls.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, call := range t.pending {
		call.timer.Stop()
	}
	n := len(t.pending)
	t.pending = make(map[string]*pendingCall)
	t.stopped = true
	slog.Info("SimpleTimer stopped", "cancelled", n)
}

// ListActive returns the pending calls, soonest first.
func (t *SimpleTimer) ListActive() []TimerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := time.Now()
	out := make([]TimerInfo, 0, len(t.pending))
	for id, call := range t.pending {
		out = append(out, call.info(id, now))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out
}

// GetTimer describes one pending call.
func (t *SimpleTimer) GetTimer(id string) (*TimerInfo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	call, ok := t.pending[id]
	if !ok {
		return nil, fmt.Errorf("timer %s: %w", id, ErrTimerNotFound)
	}
	info := call.info(id, time.Now())
	return &info, nil
}
