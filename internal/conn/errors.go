package conn

import "errors"

// ErrNotReady is returned by Send when the session is not in the Ready state.
var ErrNotReady = errors.New("session not ready")

// ErrAuthFailed marks an authentication failure that requires re-pairing.
var ErrAuthFailed = errors.New("authentication failed, re-pairing required")

// ErrTransportFatal marks a transport failure that exhausted the retry
// budget. The session stays Failed until an explicit Reconnect.
var ErrTransportFatal = errors.New("transport failed after retries, reconnect required")
