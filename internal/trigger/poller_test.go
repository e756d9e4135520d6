package trigger

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ezhang/mail-console/internal/autoreply"
)

type countingChecker struct {
	calls  atomic.Int64
	result autoreply.CheckResult
}

func (c *countingChecker) Check(_ context.Context) autoreply.CheckResult {
	c.calls.Add(1)
	return c.result
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestPollerRunsImmediatelyAndOnTicks(t *testing.T) {
	checker := &countingChecker{result: autoreply.CheckResult{Status: autoreply.StatusSkipped}}
	p := New(checker, 20*time.Millisecond, discardLogger())

	p.Start()
	defer p.Stop()

	waitFor(t, func() bool { return checker.calls.Load() >= 3 })

	status := p.Status()
	require.Equal(t, RunIdle, status.State)
	require.Equal(t, autoreply.StatusSkipped, status.LastResult.Status)
	require.False(t, status.LastRun.IsZero())
}

func TestPollerManualTrigger(t *testing.T) {
	checker := &countingChecker{result: autoreply.CheckResult{Status: autoreply.StatusPending}}
	p := New(checker, time.Hour, discardLogger())

	p.Start()
	defer p.Stop()

	waitFor(t, func() bool { return checker.calls.Load() == 1 })

	p.TriggerNow()
	waitFor(t, func() bool { return checker.calls.Load() == 2 })
}

func TestPollerRecordsErrorState(t *testing.T) {
	checker := &countingChecker{result: autoreply.CheckResult{
		Status: autoreply.StatusError,
		Error:  "imap unreachable",
	}}
	p := New(checker, time.Hour, discardLogger())

	p.Start()
	defer p.Stop()

	waitFor(t, func() bool { return checker.calls.Load() == 1 })
	waitFor(t, func() bool { return p.Status().State == RunError })
	require.Equal(t, "imap unreachable", p.Status().LastResult.Error)
}

func TestPollerStopHaltsTicks(t *testing.T) {
	checker := &countingChecker{result: autoreply.CheckResult{Status: autoreply.StatusSkipped}}
	p := New(checker, 10*time.Millisecond, discardLogger())

	p.Start()
	waitFor(t, func() bool { return checker.calls.Load() >= 1 })
	p.Stop()

	settled := checker.calls.Load()
	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, checker.calls.Load(), settled+1,
		"at most one in-flight run may finish after Stop")
}

func TestPollerStartIsIdempotent(t *testing.T) {
	checker := &countingChecker{result: autoreply.CheckResult{Status: autoreply.StatusSkipped}}
	p := New(checker, time.Hour, discardLogger())

	p.Start()
	p.Start()
	defer p.Stop()

	waitFor(t, func() bool { return checker.calls.Load() == 1 })
	time.Sleep(30 * time.Millisecond)
	require.EqualValues(t, 1, checker.calls.Load(),
		"a second Start must not spawn a second loop")
}
