// Package handlers manages the different versions of the API.
package handlers

import (
	"context"
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/ardanlabs/grokchain/app/services/node/handlers/debug/checkgrp"
	v1 "github.com/ardanlabs/grokchain/app/services/node/handlers/v1"
	"github.com/ardanlabs/grokchain/business/sys/metrics"
	"github.com/ardanlabs/grokchain/business/web/mid"
	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
	"github.com/ardanlabs/grokchain/foundation/events"
	"github.com/ardanlabs/grokchain/foundation/nameservice"
	"github.com/ardanlabs/grokchain/foundation/web"
	"go.uber.org/zap"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Shutdown chan os.Signal
	Log      *zap.SugaredLogger
	State    *state.State
	NS       *nameservice.NameService
	Evts     *events.Events
	Metrics  *metrics.Metrics
}

// PublicMux constructs the http.Handler wallets and explorers talk to.
func PublicMux(cfg MuxConfig) http.Handler {
	app := newApp(cfg, mid.Cors("*"))

	// Accept CORS 'OPTIONS' preflight requests.
	preflight := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return nil
	}
	app.Handle(http.MethodOptions, "", "/*", preflight, mid.Cors("*"))

	v1.PublicRoutes(app, v1.Config{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	})

	return app
}

// PrivateMux constructs the http.Handler miners and operators talk to.
func PrivateMux(cfg MuxConfig) http.Handler {
	app := newApp(cfg)

	v1.PrivateRoutes(app, v1.Config{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
	})

	return app
}

// newApp constructs a web.App with the middleware every api shares. The
// extra middleware runs just before the panic handler.
func newApp(cfg MuxConfig, extra ...web.Middleware) *web.App {
	mw := []web.Middleware{
		mid.Logger(cfg.Log),
		mid.Metrics(cfg.Metrics),
		mid.Errors(cfg.Log),
	}
	mw = append(mw, extra...)
	mw = append(mw, mid.Panics(cfg.Metrics))

	return web.NewApp(cfg.Shutdown, mw...)
}

// DebugMux constructs the http.Handler for the debug host. A new mux is
// used instead of the DefaultServeMux so no dependency can register a
// handler on it behind our back.
func DebugMux(build string, log *zap.SugaredLogger, st *state.State, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// Standard library profiling and expvar endpoints.
	for path, fn := range map[string]http.HandlerFunc{
		"/debug/pprof/":        pprof.Index,
		"/debug/pprof/cmdline": pprof.Cmdline,
		"/debug/pprof/profile": pprof.Profile,
		"/debug/pprof/symbol":  pprof.Symbol,
		"/debug/pprof/trace":   pprof.Trace,
	} {
		mux.HandleFunc(path, fn)
	}
	mux.Handle("/debug/vars", expvar.Handler())

	cgh := checkgrp.Handlers{
		Build: build,
		Log:   log,
		State: st,
	}
	mux.HandleFunc("/debug/readiness", cgh.Readiness)
	mux.HandleFunc("/debug/liveness", cgh.Liveness)

	mux.Handle("/metrics", m.Handler())

	return mux
}
