package conn

import "strings"

// errorClass buckets a transport error by how the manager must react.
type errorClass int

const (
	// classProtocol: session/stream level failure, eligible for retry.
	classProtocol errorClass = iota
	// classBusy: a resource-contention error (file locks, busy database).
	// Harmless outside initialization; logged and swallowed.
	classBusy
	// classAuth: credentials rejected. Terminal until re-pairing.
	classAuth
)

// transportErrorPatterns maps case-insensitive error-text signatures to a
// class. Kept as data so the mapping is testable without a live transport.
// First match wins; anything unmatched is a protocol failure.
var transportErrorPatterns = []struct {
	class    errorClass
	patterns []string
}{
	{classAuth, []string{"logged out", "unauthorized", "401", "auth failed", "not authenticated"}},
	{classBusy, []string{"resource busy", "database is locked", "locked", "ebusy", "file is busy"}},
}

// classifyTransportError buckets err by its textual signature.
func classifyTransportError(err error) errorClass {
	if err == nil {
		return classProtocol
	}
	msg := strings.ToLower(err.Error())
	for _, entry := range transportErrorPatterns {
		for _, p := range entry.patterns {
			if strings.Contains(msg, p) {
				return entry.class
			}
		}
	}
	return classProtocol
}
