package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// queryTimeout bounds a /query request. Zero means no additional timeout
// beyond server/connection timeouts.
var queryTimeout = int64(0) // seconds

// SetQueryTimeoutSeconds sets the query timeout in seconds (0 disables).
func SetQueryTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	queryTimeout = sec
}

// QueryTimeout reports the configured /query limit; 0 means none.
func QueryTimeout() time.Duration { return time.Duration(queryTimeout) * time.Second }

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
// Empty methods or headers fall back to GET/POST/OPTIONS and Content-Type.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
