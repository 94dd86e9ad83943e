package headers

// Correlation headers
const (
	// HeaderXTraceID carries the correlation id minted at the edge. Every service
	// hop forwards it unchanged so log lines across services can be joined.
	HeaderXTraceID = "X-Trace-Id"

	// HeaderXUser carries the resolved identity of the caller, or "anonymous".
	HeaderXUser = "X-User"
)

// Client address headers, consulted in this order.
const (
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderXRealIP       = "X-Real-IP"
)

// Authentication headers
const (
	// HeaderAuthorization carries the bearer credential: "Bearer <token>".
	HeaderAuthorization = "Authorization"

	// HeaderWWWAuthenticate is set on 401 responses.
	HeaderWWWAuthenticate = "WWW-Authenticate"
)

// GetHeadersToForward lists the headers a hop writes on every outbound call.
func GetHeadersToForward() []string {
	return []string{
		HeaderXTraceID,
		HeaderXUser,
	}
}
