package ethapi

import (
	"context"
	"errors"

	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ardanlabs/ethsim/foundation/web"
)

// Set of supported subscription kinds.
const (
	kindNewHeads = "newHeads"
)

// subscribe serves eth_subscribe. Headers are pushed in commit order once
// the subscription id has been delivered to the client.
func (a *API) subscribe(ctx context.Context, call jsonrpc.Call) (any, error) {
	var kind string
	if err := call.Bind(1, &kind); err != nil {
		return nil, err
	}

	if kind != kindNewHeads {
		return nil, jsonrpc.InvalidParams("unsupported subscription kind %q", kind)
	}

	if a.heads == nil {
		return nil, jsonrpc.ErrNotificationsUnsupported
	}

	conn := call.Conn
	id := subscriptionID()
	ch := a.heads.Acquire(id)

	release := func() {
		a.heads.Release(id)
	}

	if err := conn.Track(id, release); err != nil {
		release()
		return nil, err
	}

	traceID := web.GetTraceID(ctx)

	conn.OnReply(func() {
		go func() {
			for head := range ch {
				if err := conn.Notify(id, marshalHeader(head)); err != nil {
					if !errors.Is(err, jsonrpc.ErrConnClosed) {
						a.log.Infow("subscription", "traceid", traceID, "id", id, "ERROR", err)
					}
					conn.Untrack(id)
				}
			}
		}()
	})

	a.log.Infow("subscription", "traceid", traceID, "status", "started", "id", id, "kind", kind, "conn", conn.ID)

	return id, nil
}

func (a *API) unsubscribe(ctx context.Context, call jsonrpc.Call) (any, error) {
	var id string
	if err := call.Bind(1, &id); err != nil {
		return nil, err
	}

	return call.Conn.Untrack(id), nil
}
