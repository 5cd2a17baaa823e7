package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-rpc-core/message"
)

// LoggingMiddleware logs every request with its outcome and latency.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", method(req)),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Error != nil {
				logger.Warn("request failed", append(fields,
					zap.String("kind", resp.Error.Kind),
					zap.String("error", resp.Error.Message))...)
				return resp
			}
			logger.Debug("request served", fields...)
			return resp
		}
	}
}
