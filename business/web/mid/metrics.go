package mid

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ardanlabs/grokchain/business/sys/metrics"
	"github.com/ardanlabs/grokchain/foundation/web"
)

// Metrics updates program counters.
func Metrics(m *metrics.Metrics) web.Middleware {

	// This is the actual middleware function to be executed.
	mw := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Count the request with the status code that was sent.
			v, verr := web.GetValues(ctx)
			if verr != nil {
				return web.NewShutdownError("web value missing from context")
			}
			m.Request(strconv.Itoa(v.StatusCode))

			// Increment the errors counter if an error occurred on this request.
			if err != nil || v.StatusCode >= http.StatusBadRequest {
				m.Error()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return mw
}
