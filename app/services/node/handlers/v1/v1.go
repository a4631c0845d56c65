// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"
	"time"

	"github.com/ardanlabs/ethsim/app/services/node/handlers/v1/rpcgrp"
	"github.com/ardanlabs/ethsim/business/core/ethapi"
	"github.com/ardanlabs/ethsim/business/web/mid"
	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
	"github.com/ardanlabs/ethsim/foundation/events"
	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ardanlabs/ethsim/foundation/web"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log       *zap.SugaredLogger
	State     *state.State
	Heads     *events.Events[*types.Header]
	Build     string
	Origin    string
	WSEnabled bool
	KeepAlive time.Duration
}

// Routes binds the JSON-RPC endpoints. Requests posted to the root are
// request-only; a GET on the root upgrades to a web socket able to carry
// subscriptions.
func Routes(app *web.App, cfg Config) {
	d := jsonrpc.NewDispatcher(
		mid.RPCLogger(cfg.Log),
		mid.RPCMetrics(),
	)

	api := ethapi.New(ethapi.Config{
		Log:     cfg.Log,
		State:   cfg.State,
		Heads:   cfg.Heads,
		Version: cfg.Build,
	})
	api.Register(d)

	rpc := rpcgrp.Handlers{
		Log:        cfg.Log,
		Dispatcher: d,
		Heads:      cfg.Heads,
		WS:         websocket.Upgrader{CheckOrigin: rpcgrp.CheckOrigin(cfg.Origin)},
		KeepAlive:  cfg.KeepAlive,
	}

	app.Handle(http.MethodPost, "", "/", rpc.Request)
	if cfg.WSEnabled {
		app.Handle(http.MethodGet, "", "/", rpc.Connect)
	}
}
