package conn

import "strings"

// Application close codes, in the private-use range alongside the
// standard RFC 6455 codes exported by the websocket package.
const (
	// CloseTimedOut is sent when connection establishment exceeds the
	// configured timeout before reaching the open state.
	CloseTimedOut = 4000

	// CloseUnauthorized signals an invalid or expired token.
	CloseUnauthorized = 4001

	// CloseForbidden signals that access to the realtime channel was denied.
	CloseForbidden = 4003

	// CloseUserNotFound signals that the account is no longer valid.
	CloseUserNotFound = 4004
)

// isAuthClose reports whether a close code terminates the session
// rather than the transport.
func isAuthClose(code int) bool {
	switch code {
	case CloseUnauthorized, CloseForbidden, CloseUserNotFound:
		return true
	}
	return false
}

var authReasonKeywords = []string{
	"unauthorized",
	"forbidden",
	"invalid token",
	"token expired",
	"user not found",
}

// hasAuthReason reports whether a close reason text indicates an
// authorization failure regardless of the close code.
func hasAuthReason(reason string) bool {
	if reason == "" {
		return false
	}
	lower := strings.ToLower(reason)
	for _, kw := range authReasonKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
