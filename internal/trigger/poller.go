// Package trigger periodically invokes the auto-reply check.
package trigger

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/ezhang/mail-console/internal/autoreply"
)

// checkTimeout bounds a single check, covering its IMAP, SMTP, and blob
// calls together.
const checkTimeout = 60 * time.Second

// RunState represents the state of the check loop.
type RunState int

const (
	RunIdle RunState = iota
	RunActive
	RunError
)

// Status is a snapshot of the poller's last activity.
type Status struct {
	State      RunState
	LastRun    time.Time
	LastResult autoreply.CheckResult
}

// Checker is the operation the poller drives on every tick.
type Checker interface {
	Check(ctx context.Context) autoreply.CheckResult
}

// Poller runs the check on a fixed interval, with a manual trigger
// channel for check-now requests from the HTTP surface. Overlapping
// runs are not serialized; the scheduler's conditional disarm keeps a
// tick racing a manual trigger from firing twice.
type Poller struct {
	checker  Checker
	interval time.Duration
	log      *slog.Logger

	triggerCh chan struct{}
	stopCh    chan struct{}

	mu      gosync.Mutex
	running bool
	status  Status
}

// New creates a poller. A non-positive interval falls back to one
// minute.
func New(checker Checker, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		checker:   checker,
		interval:  interval,
		log:       log,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling goroutine. Calling Start twice is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true

	go p.loop()
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// TriggerNow requests an immediate check without waiting for the next
// tick. If a trigger is already queued the request is dropped.
func (p *Poller) TriggerNow() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the last run.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// loop runs checks until Stop.
func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runOnce()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runOnce()
		case <-p.triggerCh:
			p.runOnce()
		}
	}
}

// runOnce performs a single bounded check and records its outcome.
func (p *Poller) runOnce() {
	p.setState(RunActive)

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	result := p.checker.Check(ctx)

	p.mu.Lock()
	p.status.LastRun = time.Now()
	p.status.LastResult = result
	if result.Status == autoreply.StatusError {
		p.status.State = RunError
	} else {
		p.status.State = RunIdle
	}
	p.mu.Unlock()

	switch result.Status {
	case autoreply.StatusError:
		p.log.Error("auto-reply check failed", "error", result.Error)
	case autoreply.StatusSent, autoreply.StatusNoRecipients:
		p.log.Info("auto-reply check fired", "status", string(result.Status))
	default:
		p.log.Debug("auto-reply check", "status", string(result.Status))
	}
}

// setState updates only the run state.
func (p *Poller) setState(state RunState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = state
}
