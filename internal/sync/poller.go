package sync

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/inbox-clarity/internal/source"
)

// SyncState represents the current state of the poller.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the poller's latest state.
type SyncStatus struct {
	State       SyncState
	LastSync    time.Time
	LastSummary *Summary
	Error       error
}

// Result is sent on the results channel after every refresh.
type Result struct {
	Summary *Summary
	Error   error

	// AuthError is set when the mailbox rejected the credentials.
	AuthError bool
}

// Runner performs one refresh.
type Runner interface {
	Refresh(ctx context.Context) (*Summary, error)
}

const defaultPollInterval = 120 * time.Second

// Poller refreshes a mailbox periodically and on demand.
type Poller struct {
	runner    Runner
	interval  time.Duration
	logger    *zap.Logger
	status    SyncStatus
	resultCh  chan Result
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// NewPoller creates a poller. A non-positive interval means two minutes.
func NewPoller(runner Runner, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		runner:    runner,
		interval:  interval,
		logger:    logger.Named("poller"),
		resultCh:  make(chan Result, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the polling goroutine, which refreshes immediately and
// then on every tick or trigger. Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop halts polling and waits for an in-flight refresh to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	<-p.doneCh
	close(p.resultCh)
}

// Trigger requests an immediate refresh. Triggers that arrive while one is
// already pending are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Results delivers refresh outcomes. It is closed by Stop.
func (p *Poller) Results() <-chan Result {
	return p.resultCh
}

// Status returns a snapshot of the poller's state.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		case <-p.triggerCh:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	p.setStatus(SyncRunning, nil, nil)

	summary, err := p.runner.Refresh(ctx)
	if err != nil {
		p.setStatus(SyncError, nil, err)
		auth := source.IsAuthError(err)
		if auth {
			p.logger.Error("mailbox authentication failed; reconfigure credentials", zap.Error(err))
		} else {
			p.logger.Warn("refresh failed", zap.Error(err))
		}
		p.sendResult(Result{Error: err, AuthError: auth})
		return
	}

	p.setStatus(SyncIdle, summary, nil)
	p.sendResult(Result{Summary: summary})
}

func (p *Poller) setStatus(state SyncState, summary *Summary, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
		p.status.LastSummary = summary
	}
}

// sendResult sends without blocking; results are dropped when nobody reads.
func (p *Poller) sendResult(r Result) {
	select {
	case p.resultCh <- r:
	default:
	}
}
