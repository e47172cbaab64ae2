package chi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// keyring holds the accepted API keys. Empty entries are ignored.
type keyring [][]byte

func newKeyring(keys []string) keyring {
	ring := make(keyring, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			ring = append(ring, []byte(k))
		}
	}
	return ring
}

// accepts compares against every key so timing does not reveal which one matched.
func (ring keyring) accepts(token string) bool {
	ok := 0
	for _, k := range ring {
		ok |= subtle.ConstantTimeCompare(k, []byte(token))
	}
	return ok == 1
}

// bearerToken extracts the credential of an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", "authorization header must use Bearer scheme"
	}
	return strings.TrimSpace(token), ""
}

// BearerAuthMiddleware guards the catalog routes with API keys.
// Without keys every request passes.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	ring := newKeyring(apiKeys)
	return func(next http.Handler) http.Handler {
		if len(ring) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r.Header.Get("Authorization"))
			if problem == "" && !ring.accepts(token) {
				problem = "invalid api key"
			}
			if problem != "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="swarmkb"`)
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, problem)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
