package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/inbox-clarity/internal/source"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Refresh(context.Context) (*Summary, error) {
	n := r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &Summary{Processed: int(n), Success: true}, nil
}

func receive(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a refresh result")
		return Result{}
	}
}

func TestPollerRefreshesOnStartAndTrigger(t *testing.T) {
	runner := &countingRunner{}
	p := NewPoller(runner, time.Hour, zaptest.NewLogger(t))
	p.Start(context.Background())
	p.Start(context.Background())

	first := receive(t, p.Results())
	require.NoError(t, first.Error)
	assert.Equal(t, 1, first.Summary.Processed)

	p.Trigger()
	second := receive(t, p.Results())
	assert.Equal(t, 2, second.Summary.Processed)

	status := p.Status()
	assert.Equal(t, SyncIdle, status.State)
	assert.False(t, status.LastSync.IsZero())
	assert.Equal(t, 2, status.LastSummary.Processed)

	p.Stop()
	p.Stop()
	_, open := <-p.Results()
	assert.False(t, open)
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestPollerTicks(t *testing.T) {
	runner := &countingRunner{}
	p := NewPoller(runner, 10*time.Millisecond, zaptest.NewLogger(t))
	p.Start(context.Background())
	defer p.Stop()

	for range 3 {
		receive(t, p.Results())
	}
	assert.GreaterOrEqual(t, runner.calls.Load(), int32(3))
}

func TestPollerReportsAuthErrors(t *testing.T) {
	runner := &countingRunner{err: &source.AuthError{Provider: source.ProviderIMAP, Message: "bad password"}}
	p := NewPoller(runner, time.Hour, zaptest.NewLogger(t))
	p.Start(context.Background())
	defer p.Stop()

	r := receive(t, p.Results())
	assert.True(t, r.AuthError)
	assert.Equal(t, SyncError, p.Status().State)
}

func TestPollerPlainErrors(t *testing.T) {
	runner := &countingRunner{err: errors.New("network down")}
	p := NewPoller(runner, time.Hour, zaptest.NewLogger(t))
	p.Start(context.Background())
	defer p.Stop()

	r := receive(t, p.Results())
	assert.False(t, r.AuthError)
	assert.EqualError(t, r.Error, "network down")
	assert.Equal(t, "error", p.Status().State.String())
}
