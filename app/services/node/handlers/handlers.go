// Package handlers binds the node's public, private and debug APIs to their
// routes.
package handlers

import (
	"context"
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/ardanlabs/qchain/app/services/node/handlers/debug/checkgrp"
	v1 "github.com/ardanlabs/qchain/app/services/node/handlers/v1"
	"github.com/ardanlabs/qchain/business/web/mid"
	"github.com/ardanlabs/qchain/foundation/blockchain/state"
	"github.com/ardanlabs/qchain/foundation/events"
	"github.com/ardanlabs/qchain/foundation/nameservice"
	"github.com/ardanlabs/qchain/foundation/web"
	"go.uber.org/zap"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Shutdown    chan os.Signal
	Log         *zap.SugaredLogger
	State       *state.State
	NS          *nameservice.NameService
	Evts        *events.Events
	CORSOrigins []string
}

// PublicMux constructs the handler serving wallets and viewers.
func PublicMux(cfg MuxConfig) http.Handler {
	cors := mid.Cors(cfg.CORSOrigins)

	app := web.NewApp(cfg.Shutdown, append(common(cfg.Log), cors)...)

	// Browsers send a preflight before every cross origin POST.
	preflight := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
	app.Handle(http.MethodOptions, "", "/*", preflight)

	v1.PublicRoutes(app, v1.Config{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	})

	return app
}

// PrivateMux constructs the handler serving other nodes. It is never exposed
// to browsers so no CORS headers are set.
func PrivateMux(cfg MuxConfig) http.Handler {
	app := web.NewApp(cfg.Shutdown, common(cfg.Log)...)

	v1.PrivateRoutes(app, v1.Config{
		Log:   cfg.Log,
		State: cfg.State,
	})

	return app
}

// DebugMux registers the profiling, metrics and health endpoints on a fresh
// mux. The DefaultServeMux is avoided so an imported package can't register
// handlers on the debug port.
func DebugMux(build string, log *zap.SugaredLogger, st *state.State) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	cgh := checkgrp.Handlers{
		Build: build,
		Log:   log,
		State: st,
	}
	mux.HandleFunc("/debug/readiness", cgh.Readiness)
	mux.HandleFunc("/debug/liveness", cgh.Liveness)

	return mux
}

// common is the middleware stack shared by the public and private APIs. The
// order matters: errors are logged before metrics count them and panics are
// recovered closest to the handler.
func common(log *zap.SugaredLogger) []web.Middleware {
	return []web.Middleware{
		mid.Logger(log),
		mid.Errors(log),
		mid.Metrics(),
		mid.Panics(),
	}
}
