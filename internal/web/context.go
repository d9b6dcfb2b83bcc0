package web

import (
	"net/http"

	"github.com/JonMunkholm/reviewflow/internal/core"
)

// withTrigger marks work started through the API so run logs show where it
// came from.
func withTrigger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithTrigger(r.Context(), core.TriggerAPI)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
