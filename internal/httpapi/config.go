package httpapi

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
// Documents travel inline in /v1/updates, so the default is 2 MiB.
var maxBodyBytes int64 = 2 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 2 << 20
		return
	}
	maxBodyBytes = n
}

// authToken guards /v1 endpoints when non-empty.
var authToken string

// SetAuthToken sets the bearer token required by /v1 endpoints. Empty disables auth.
func SetAuthToken(token string) { authToken = token }

// CORS configuration (opt-in). If no origins are set, no CORS middleware is added.
var (
	corsAllowedOrigins []string
	corsAllowedMethods = []string{"GET", "POST", "OPTIONS"}
	corsAllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-Id", "X-Log-Level"}
)

// SetCORSOptions configures CORS behavior for the HTTP server. Nil methods or
// headers keep the defaults.
func SetCORSOptions(origins, methods, headers []string) {
	corsAllowedOrigins = append([]string(nil), origins...)
	if methods != nil {
		corsAllowedMethods = append([]string(nil), methods...)
	}
	if headers != nil {
		corsAllowedHeaders = append([]string(nil), headers...)
	}
}
