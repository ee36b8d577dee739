package mid

import (
	"context"
	"net/http"
	"strings"

	"github.com/ardanlabs/grokchain/foundation/web"
)

var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	corsHeaders = strings.Join([]string{"Origin", "Accept", "Content-Type", "Content-Length", "Accept-Encoding"}, ", ")
)

// Cors sets the response headers needed for Cross-Origin Resource Sharing.
// The node only serves reads and submissions, so only those methods are
// advertised.
func Cors(origin string) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			hdr := w.Header()
			hdr.Set("Access-Control-Allow-Origin", origin)
			hdr.Set("Access-Control-Allow-Methods", corsMethods)
			hdr.Set("Access-Control-Allow-Headers", corsHeaders)
			if origin != "*" {
				hdr.Add("Vary", "Origin")
			}

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
