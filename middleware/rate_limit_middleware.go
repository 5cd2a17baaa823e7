package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"mini-rpc-core/errs"
	"mini-rpc-core/message"
)

// RateLimitMiddleware is a token bucket shared by every request through the chain.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			if !limiter.Allow() {
				return message.ErrorResponse(errs.KindRateLimited, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
