package middleware

import (
	"context"
	"time"

	"mini-rpc-core/errs"
	"mini-rpc-core/message"
)

// TimeOutMiddleware answers with a Timeout error once d has passed. The handler keeps
// running in the background; it sees the cancelled ctx.
func TimeOutMiddleware(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan *message.RpcResponse, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.ErrorResponse(errs.KindTimeout, "request timed out after %s", d)
			}
		}
	}
}
