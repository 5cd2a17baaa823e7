// Package middleware wraps the provider's dispatch handler.
package middleware

import (
	"context"

	"mini-rpc-core/message"
)

// HandlerFunc turns one request into exactly one response; failures travel
// inside the response.
type HandlerFunc func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse

// Middleware wraps a handler.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares; the first one is outermost.
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

func method(req *message.RpcRequest) string {
	return req.ServiceName + "." + req.Key()
}
