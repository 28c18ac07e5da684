package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
)

// DefaultActorHeader carries the actor id verified by the upstream
// authentication layer
const DefaultActorHeader = "X-Actor-ID"

// ActorFunc extracts the acting user's id from a request
type ActorFunc func(r *http.Request) string

// ActorFromHeader copies the actor id from header into the request context.
// Requests without one are rejected with 401. No token validation happens
// here; the header must only be reachable through a trusted proxy.
func ActorFromHeader(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultActorHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := strings.TrimSpace(r.Header.Get(header))
			if actorID == "" {
				httputil.WriteUnauthorized(w, "missing actor identity")
				return
			}

			ctx := contextkeys.WithActorID(r.Context(), actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext is the ActorFunc for requests that passed ActorFromHeader
func ActorFromContext(r *http.Request) string {
	return contextkeys.GetActorID(r.Context())
}
