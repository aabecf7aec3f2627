package mid

import (
	"context"
	"net/http"
	"slices"

	"github.com/ardanlabs/qchain/foundation/web"
)

// Cors echoes the request origin back when it is one of the allowed origins.
// A "*" entry allows every origin, which is what the wallet and the viewer
// running on localhost need during development.
func Cors(origins []string) web.Middleware {
	wildcard := slices.Contains(origins, "*")

	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			origin := r.Header.Get("Origin")

			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")

			case origin != "" && slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding")

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
