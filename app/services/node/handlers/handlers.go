// Package handlers manages the different versions of the API.
package handlers

import (
	"context"
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/ardanlabs/ethsim/app/services/node/handlers/debug/checkgrp"
	v1 "github.com/ardanlabs/ethsim/app/services/node/handlers/v1"
	"github.com/ardanlabs/ethsim/business/web/mid"
	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
	"github.com/ardanlabs/ethsim/foundation/events"
	"github.com/ardanlabs/ethsim/foundation/web"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Shutdown  chan os.Signal
	Log       *zap.SugaredLogger
	State     *state.State
	Heads     *events.Events[*types.Header]
	Build     string
	Origin    string
	WSEnabled bool
	KeepAlive time.Duration
}

// RPCMux constructs a http.Handler with the JSON-RPC routes defined.
func RPCMux(cfg MuxConfig) http.Handler {

	// Construct the web.App which holds all routes as well as common Middleware.
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Metrics(),
		mid.Cors(cfg.Origin),
		mid.Panics(),
	)

	// Accept CORS 'OPTIONS' preflight requests.
	h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return nil
	}
	app.Handle(http.MethodOptions, "", "/", h, mid.Cors(cfg.Origin))
	app.Handle(http.MethodOptions, "", "/*", h, mid.Cors(cfg.Origin))

	// Load the v1 routes.
	v1.Routes(app, v1.Config{
		Log:       cfg.Log,
		State:     cfg.State,
		Heads:     cfg.Heads,
		Build:     cfg.Build,
		Origin:    cfg.Origin,
		WSEnabled: cfg.WSEnabled,
		KeepAlive: cfg.KeepAlive,
	})

	return app
}

// DebugStandardLibraryMux registers all the debug routes from the standard library
// into a new mux bypassing the use of the DefaultServerMux. Using the
// DefaultServerMux would be a security risk since a dependency could inject a
// handler into our service without us knowing it.
func DebugStandardLibraryMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Register all the standard library debug endpoints.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	return mux
}

// DebugMux registers all the debug standard library routes and then custom
// debug application routes for the service. This bypassing the use of the
// DefaultServerMux. Using the DefaultServerMux would be a security risk since
// a dependency could inject a handler into our service without us knowing it.
func DebugMux(build string, log *zap.SugaredLogger, st *state.State) http.Handler {
	mux := DebugStandardLibraryMux()

	// Register debug check endpoints.
	cgh := checkgrp.Handlers{
		Build: build,
		Log:   log,
		State: st,
	}
	mux.HandleFunc("/debug/readiness", cgh.Readiness)
	mux.HandleFunc("/debug/liveness", cgh.Liveness)

	// Register the prometheus metrics.
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
