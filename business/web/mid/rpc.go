package mid

import (
	"context"
	"time"

	"github.com/ardanlabs/ethsim/business/sys/metrics"
	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ardanlabs/ethsim/foundation/web"
	"go.uber.org/zap"
)

// RPCLogger writes the method, outcome and latency of every JSON-RPC call
// to the logs.
func RPCLogger(log *zap.SugaredLogger) jsonrpc.Middleware {
	m := func(handler jsonrpc.Handler) jsonrpc.Handler {
		h := func(ctx context.Context, call jsonrpc.Call) (any, error) {
			now := time.Now()

			result, err := handler(ctx, call)

			args := []any{"traceid", web.GetTraceID(ctx), "method", call.Method, "since", time.Since(now)}
			if call.Conn != nil {
				args = append(args, "conn", call.Conn.ID, "capability", call.Conn.Capability)
			}

			if err != nil {
				log.Infow("rpc call failed", append(args, "ERROR", err)...)
				return result, err
			}

			log.Infow("rpc call completed", args...)
			return result, nil
		}

		return h
	}

	return m
}

// RPCMetrics updates the JSON-RPC counters.
func RPCMetrics() jsonrpc.Middleware {
	m := func(handler jsonrpc.Handler) jsonrpc.Handler {
		h := func(ctx context.Context, call jsonrpc.Call) (any, error) {
			now := time.Now()

			result, err := handler(ctx, call)

			metrics.ObserveCall(call.Method, time.Since(now).Seconds(), err != nil)

			return result, err
		}

		return h
	}

	return m
}
