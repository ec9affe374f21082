package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/calade/reportdeck/model"
)

// SetAutoRefresh starts or stops the periodic re-execution timer. Enabling
// twice, or toggling after Close, is a no-op. Each tick re-runs the report
// through the cache-aware path with the request context of the last manual
// execution; ticks that land before any successful execution, or while
// another execution is in flight, are skipped.
func (x *Extension) SetAutoRefresh(enabled bool) {
	x.refreshMu.Lock()
	if x.closed || enabled == x.refreshEnabled {
		x.refreshMu.Unlock()
		return
	}
	x.refreshEnabled = enabled
	interval := x.refreshInterval
	if enabled {
		x.startRefreshLocked()
	} else {
		x.stopRefreshLocked()
	}
	x.refreshMu.Unlock()

	if enabled {
		x.base.notifyInfo(fmt.Sprintf("Auto-refresh enabled (every %d seconds)", int(interval/time.Second)))
	} else {
		x.base.notifyInfo("Auto-refresh disabled")
	}
}

// AutoRefreshEnabled reports whether the refresh timer is running.
func (x *Extension) AutoRefreshEnabled() bool {
	x.refreshMu.Lock()
	defer x.refreshMu.Unlock()
	return x.refreshEnabled
}

// RefreshInterval returns the configured refresh period.
func (x *Extension) RefreshInterval() time.Duration {
	x.refreshMu.Lock()
	defer x.refreshMu.Unlock()
	return x.refreshInterval
}

// SetRefreshInterval changes the refresh period, restarting a running timer
// so the new period takes effect immediately. Periods are whole seconds, at
// least one.
func (x *Extension) SetRefreshInterval(seconds int) error {
	if seconds < 1 {
		return model.NewBadRequestError("refresh interval must be at least 1 second")
	}

	x.refreshMu.Lock()
	x.refreshInterval = time.Duration(seconds) * time.Second
	if x.refreshEnabled && !x.closed {
		x.stopRefreshLocked()
		x.startRefreshLocked()
	}
	x.refreshMu.Unlock()
	return nil
}

// startRefreshLocked launches the ticker goroutine. Callers hold refreshMu.
func (x *Extension) startRefreshLocked() {
	stop := make(chan struct{})
	x.refreshStop = stop
	interval := x.refreshInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				x.refreshTick(interval)
			}
		}
	}()
}

// stopRefreshLocked signals the ticker goroutine to exit. Callers hold
// refreshMu.
func (x *Extension) stopRefreshLocked() {
	if x.refreshStop != nil {
		close(x.refreshStop)
		x.refreshStop = nil
	}
}

// refreshTick re-executes the report once. A tick is skipped when no
// execution has succeeded yet or when one is already running.
func (x *Extension) refreshTick(interval time.Duration) {
	if !x.base.State().Executed {
		if x.base.metrics != nil {
			x.base.metrics.RecordRefreshTick("skipped")
		}
		return
	}
	if !x.execMu.TryLock() {
		if x.base.metrics != nil {
			x.base.metrics.RecordRefreshTick("skipped")
		}
		return
	}
	defer x.execMu.Unlock()

	x.mu.Lock()
	rctx := x.lastRctx
	opts := x.lastOpts
	x.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), interval)
	defer cancel()
	if rctx != nil {
		ctx = model.WithRequestContext(ctx, rctx)
	}

	if x.base.metrics != nil {
		x.base.metrics.RecordRefreshTick("run")
	}
	x.executeCached(ctx, opts)
}

// Close stops the refresh timer and detaches the extension. Safe to call
// more than once.
func (x *Extension) Close() {
	x.refreshMu.Lock()
	defer x.refreshMu.Unlock()
	if x.closed {
		return
	}
	x.closed = true
	x.refreshEnabled = false
	x.stopRefreshLocked()
}
