package conn

import (
	"sync/atomic"
	"time"
)

// retryToken identifies one scheduled reconnect attempt. Cancelling it
// guarantees a stale timer cannot resurrect a session the caller tore down.
type retryToken struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

// Cancel stops the pending attempt. Safe to call more than once and safe to
// call on a nil token.
func (t *retryToken) Cancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
	if t.timer != nil {
		t.timer.Stop()
	}
}

// scheduleRetry runs fn after delay unless the token is cancelled first.
func scheduleRetry(delay time.Duration, fn func(token *retryToken)) *retryToken {
	t := &retryToken{}
	t.timer = time.AfterFunc(delay, func() {
		if t.cancelled.Load() {
			return
		}
		fn(t)
	})
	return t
}
