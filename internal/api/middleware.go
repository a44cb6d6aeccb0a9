package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strconv"
)

const authRealm = `Basic realm="Raidlog Companion"`

// securityHeadersMiddleware adds security headers to all responses. The
// API serves JSON and event streams only, so nothing may be framed or
// executed.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// constantTimeEqualString compares two strings in constant time.
// Hashing first makes the comparison time independent of input lengths.
func constantTimeEqualString(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}

// basicAuthMiddleware checks HTTP Basic Auth credentials. When failures is
// non-nil, clients with too many bad attempts get 429 until the lockout
// expires.
func basicAuthMiddleware(username, password string, failures *AuthFailureLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractIP(r)
			if failures != nil && failures.IsLocked(ip) {
				w.Header().Set("Retry-After", strconv.Itoa(failures.LockoutSecondsRemaining(ip)))
				writeError(w, http.StatusTooManyRequests, "too many failed attempts", nil)
				return
			}

			u, p, ok := r.BasicAuth()
			// Both comparisons always run.
			userOK := constantTimeEqualString(u, username)
			passOK := constantTimeEqualString(p, password)
			if !ok || !userOK || !passOK {
				if ok && failures != nil {
					failures.RecordFailure(ip)
				}
				w.Header().Set("WWW-Authenticate", authRealm)
				writeError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}

			if failures != nil {
				failures.RecordSuccess(ip)
			}
			next.ServeHTTP(w, r)
		})
	}
}
