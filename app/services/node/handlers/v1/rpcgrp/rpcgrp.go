// Package rpcgrp maintains the group of handlers serving JSON-RPC over HTTP
// and WebSocket.
package rpcgrp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ardanlabs/ethsim/business/sys/metrics"
	v1 "github.com/ardanlabs/ethsim/business/web/v1"
	"github.com/ardanlabs/ethsim/foundation/events"
	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ardanlabs/ethsim/foundation/web"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// writeWait is the time allowed to write a message to the peer.
const writeWait = 10 * time.Second

// Handlers manages the set of JSON-RPC endpoints.
type Handlers struct {
	Log        *zap.SugaredLogger
	Dispatcher *jsonrpc.Dispatcher
	Heads      *events.Events[*types.Header]
	WS         websocket.Upgrader
	KeepAlive  time.Duration
}

// CheckOrigin returns the origin policy for web socket upgrades. A "*" origin
// accepts every caller, anything else must match the Origin header. Requests
// without an Origin header do not come from a browser and are accepted.
func CheckOrigin(origin string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if origin == "" || origin == "*" {
			return true
		}

		got := r.Header.Get("Origin")
		if got == "" {
			return true
		}

		return strings.EqualFold(got, origin)
	}
}

// Request serves a single request or a batch over plain HTTP. The connection
// can't carry notifications.
func (h Handlers) Request(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	body, err := web.ReadBody(r)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := h.Dispatcher.Handle(ctx, jsonrpc.NewConn(), body)

	return web.Respond(ctx, w, json.RawMessage(resp), http.StatusOK)
}

// Connect upgrades the request to a web socket and serves requests from it
// until the client goes away. Subscriptions created over the socket are
// released when it closes.
func (h Handlers) Connect(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {

		// The upgrader already replied to the client.
		web.SetStatusCode(ctx, http.StatusBadRequest)
		h.Log.Infow("websocket", "traceid", v.TraceID, "status", "upgrade failed", "ERROR", err)
		return nil
	}
	defer c.Close()

	web.SetStatusCode(ctx, http.StatusSwitchingProtocols)

	conn := jsonrpc.NewPushConn(func(msg []byte) error {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		return c.WriteMessage(websocket.TextMessage, msg)
	})

	defer func() {
		conn.Close()
		metrics.SetSubscriptions(h.Heads.Len())
		h.Log.Infow("websocket", "traceid", v.TraceID, "status", "closed", "conn", conn.ID)
	}()

	h.Log.Infow("websocket", "traceid", v.TraceID, "status", "connected", "conn", conn.ID)

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 5 * time.Second
	}

	// The peer must answer a ping before the next two go out.
	pongWait := 2 * keepAlive
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return

			case <-ticker.C:
				if err := c.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Log.Infow("websocket", "traceid", v.TraceID, "status", "read failed", "conn", conn.ID, "ERROR", err)
			}
			return nil
		}

		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		resp := h.Dispatcher.Handle(ctx, conn, msg)
		if err := conn.Reply(resp); err != nil {
			h.Log.Infow("websocket", "traceid", v.TraceID, "status", "write failed", "conn", conn.ID, "ERROR", err)
			return nil
		}

		metrics.SetSubscriptions(h.Heads.Len())
	}
}
