package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS returns middleware that answers cross-origin requests only for the
// listed origins. Requests from any other origin get no Access-Control
// headers, which makes the browser reject the response. Preflights pass
// through to the route so that it can answer 204.
func CORS(allowed []string) func(http.Handler) http.Handler {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins[o] = true
		}
	}

	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return origins[origin]
		},
		AllowedMethods:     []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type"},
		OptionsPassthrough: true,
	})
}
