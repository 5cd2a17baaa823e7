package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mini-rpc-core/errs"
	"mini-rpc-core/message"
)

func echoHandler(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
	return &message.RpcResponse{Data: "ok", DataType: "string"}
}

func slowHandler(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
	}
	return &message.RpcResponse{Data: "ok", DataType: "string"}
}

func failingHandler(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
	return message.ErrorResponse(errs.KindInvocation, "divide by zero")
}

func newReq() *message.RpcRequest {
	return message.NewRequest("Calculator", "add", 1, 2)
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	resp := LoggingMiddleware(logger)(echoHandler)(context.Background(), newReq())
	require.NotNil(t, resp)
	assert.Equal(t, "ok", resp.Data)

	resp = LoggingMiddleware(logger)(failingHandler)(context.Background(), newReq())
	assert.Equal(t, errs.KindInvocation, resp.Error.Kind)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "request served", logs.All()[0].Message)
	assert.Equal(t, "Calculator.add(int,int)", logs.All()[0].ContextMap()["method"])
	assert.Equal(t, "request failed", logs.All()[1].Message)
	assert.Equal(t, errs.KindInvocation, logs.All()[1].ContextMap()["kind"])
}

func TestTimeout(t *testing.T) {
	testCases := []struct {
		name     string
		timeout  time.Duration
		handler  HandlerFunc
		wantKind string
	}{
		{name: "pass", timeout: 500 * time.Millisecond, handler: echoHandler},
		{name: "exceeded", timeout: 50 * time.Millisecond, handler: slowHandler, wantKind: errs.KindTimeout},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := TimeOutMiddleware(tc.timeout)(tc.handler)(context.Background(), newReq())
			if tc.wantKind == "" {
				assert.Nil(t, resp.Error)
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantKind, resp.Error.Kind)
		})
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), newReq())
		assert.Nil(t, resp.Error, "request %d", i)
	}
	resp := handler(context.Background(), newReq())
	require.NotNil(t, resp.Error)
	assert.Equal(t, errs.KindRateLimited, resp.Error.Kind)
}

func TestChain(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
				order = append(order, name+".before")
				resp := next(ctx, req)
				order = append(order, name+".after")
				return resp
			}
		}
	}
	handler := Chain(trace("A"), trace("B"), TimeOutMiddleware(500*time.Millisecond))(echoHandler)
	resp := handler(context.Background(), newReq())
	assert.Nil(t, resp.Error)
	assert.Equal(t, []string{"A.before", "B.before", "B.after", "A.after"}, order)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "minirpc")
	require.NoError(t, err)

	ok := m.Middleware()(echoHandler)
	bad := m.Middleware()(failingHandler)
	ok(context.Background(), newReq())
	ok(context.Background(), newReq())
	bad(context.Background(), newReq())

	assert.Equal(t, 3.0, testutil.ToFloat64(m.requests.WithLabelValues("Calculator", "add(int,int)")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("Calculator", "add(int,int)", errs.KindInvocation)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.active.WithLabelValues("Calculator")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))

	// registering twice on the same registry fails
	_, err = NewMetrics(reg, "minirpc")
	assert.Error(t, err)
}
