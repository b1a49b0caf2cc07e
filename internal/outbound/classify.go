package outbound

import (
	"context"
	"errors"
	"strings"
)

// providerErrorSignatures maps case-insensitive substrings of provider error
// text to a failure code. The mapping is data, not control flow, so it can be
// unit-tested without a live transport. First match wins.
var providerErrorSignatures = []struct {
	code     FailureCode
	patterns []string
}{
	{NotRegistered, []string{"not registered", "unregistered", "not on whatsapp", "recipient not found", "item-not-found"}},
	{Timeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{RateLimited, []string{"rate limit", "rate-overlimit", "too many requests", "429", "flood"}},
	{SessionLost, []string{"session destroyed", "session closed", "not connected", "websocket", "not logged in", "disconnected"}},
}

// ClassifySendError buckets a dispatch failure by its textual signature.
func ClassifySendError(err error) *SendError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &SendError{Code: Timeout, Err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, entry := range providerErrorSignatures {
		for _, p := range entry.patterns {
			if strings.Contains(msg, p) {
				return &SendError{Code: entry.code, Err: err}
			}
		}
	}
	return &SendError{Code: Unknown, Err: err}
}
