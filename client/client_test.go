package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mini-rpc-core/application"
	"mini-rpc-core/config"
	"mini-rpc-core/errs"
	"mini-rpc-core/loadbalance"
	"mini-rpc-core/message"
	"mini-rpc-core/registry"
	"mini-rpc-core/retry"
	"mini-rpc-core/server"
	"mini-rpc-core/tolerant"
)

type Pair struct {
	A, B int
}

type Calculator struct {
	id string
}

func (c *Calculator) Add(a, b int) int {
	return a + b
}

func (c *Calculator) Sum(p Pair) int {
	return p.A + p.B
}

func (c *Calculator) Divide(ctx context.Context, a, b int) (int, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (c *Calculator) Describe(p *Pair) string {
	if p == nil {
		return "none"
	}
	return "pair"
}

func (c *Calculator) Whoami() string {
	return c.id
}

// startCalculator serves a Calculator on a loopback port and returns the port.
func startCalculator(t *testing.T, id string) int {
	t.Helper()
	svr := server.NewServer(server.WithLogger(zap.NewNop()))
	svc, err := server.NewReceiverService("Calculator", &Calculator{id: id})
	require.NoError(t, err)
	svr.Register(svc)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = svr.ServeListener(l) }()
	t.Cleanup(func() { _ = svr.Shutdown(time.Second) })
	return l.Addr().(*net.TCPAddr).Port
}

func deadPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func newRuntime(port int) *application.Runtime {
	cfg := config.Default()
	cfg.Client.ServiceName = "Calculator"
	cfg.Client.ServerHost = "127.0.0.1"
	cfg.Client.ServerPort = port
	cfg.Client.TimeoutMs = 2000
	return &application.Runtime{
		Config:       cfg,
		LoadBalancer: &loadbalance.RoundRobin{},
		Retry:        retry.NoRetry{},
		Tolerant:     tolerant.FailFast{},
	}
}

func newClient(t *testing.T, rt *application.Runtime) *Client {
	t.Helper()
	c, err := New(rt, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// recordingTolerant remembers what it was handed.
type recordingTolerant struct {
	attempted []string
	err       error
}

func (r *recordingTolerant) Tolerant(attempted []string, err error) (*message.RpcResponse, error) {
	r.attempted, r.err = attempted, err
	return nil, nil
}

func TestInvoke(t *testing.T) {
	c := newClient(t, newRuntime(startCalculator(t, "a")))
	message.RegisterType(Pair{})

	testCases := []struct {
		name     string
		method   string
		args     []any
		wantRes  any
		wantErr  error
		wantKind string
	}{
		{name: "add", method: "Add", args: []any{1, 2}, wantRes: 3},
		{name: "struct argument", method: "Sum", args: []any{Pair{A: 4, B: 5}}, wantRes: 9},
		{name: "with context", method: "Divide", args: []any{9, 3}, wantRes: 3},
		{name: "provider error", method: "Divide", args: []any{1, 0}, wantKind: errs.KindInvocation},
		{name: "method not found", method: "Multiply", args: []any{1, 2}, wantErr: errs.ErrMethodNotFound, wantKind: errs.KindMethodNotFound},
		{name: "wrong parameter types", method: "Add", args: []any{"1", "2"}, wantErr: errs.ErrMethodNotFound, wantKind: errs.KindMethodNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Invoke(context.Background(), message.NewRequest("Calculator", tc.method, tc.args...))
			if tc.wantKind != "" {
				var remote *errs.RemoteInvocationError
				require.ErrorAs(t, err, &remote)
				assert.Equal(t, tc.wantKind, remote.Kind)
				assert.Equal(t, "Calculator", remote.Service)
				assert.Equal(t, tc.method, remote.Method)
				if tc.wantErr != nil {
					assert.ErrorIs(t, err, tc.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantRes, res)
		})
	}
}

func TestInvokeServiceNotFound(t *testing.T) {
	c := newClient(t, newRuntime(startCalculator(t, "a")))
	_, err := c.Invoke(context.Background(), message.NewRequest("Abacus", "Add", 1, 2))
	assert.ErrorIs(t, err, errs.ErrServiceNotFound)
}

func TestCallConvertsResult(t *testing.T) {
	c := newClient(t, newRuntime(startCalculator(t, "a")))

	sum, err := Call[int](context.Background(), c, "Calculator", "Add", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, sum)

	wide, err := Call[int64](context.Background(), c, "Calculator", "Add", 20, 22)
	require.NoError(t, err)
	assert.Equal(t, int64(42), wide)

	id, err := Call[string](context.Background(), c, "Calculator", "Whoami")
	require.NoError(t, err)
	assert.Equal(t, "a", id)
}

func TestCallWithNilArgument(t *testing.T) {
	c := newClient(t, newRuntime(startCalculator(t, "a")))

	got, err := Call[string](context.Background(), c, "Calculator", "Describe", (*Pair)(nil))
	require.NoError(t, err)
	assert.Equal(t, "none", got)

	got, err = Call[string](context.Background(), c, "Calculator", "Describe", &Pair{A: 1})
	require.NoError(t, err)
	assert.Equal(t, "pair", got)

	// an untyped nil carries no descriptor and matches no method
	_, err = Call[string](context.Background(), c, "Calculator", "Describe", nil)
	assert.ErrorIs(t, err, errs.ErrMethodNotFound)
}

func TestRemoteErrorsAreNotRetried(t *testing.T) {
	rt := newRuntime(startCalculator(t, "a"))
	rt.Retry = retry.NewScheduledRetry(3, 10*time.Millisecond)
	rec := &recordingTolerant{}
	rt.Tolerant = rec
	c := newClient(t, rt)

	_, err := c.Invoke(context.Background(), message.NewRequest("Calculator", "Divide", 1, 0))
	var remote *errs.RemoteInvocationError
	require.ErrorAs(t, err, &remote)
	assert.Nil(t, rec.err)
}

func TestExhaustedRetriesReachTolerant(t *testing.T) {
	port := deadPort(t)

	t.Run("fail fast", func(t *testing.T) {
		rt := newRuntime(port)
		rt.Retry = retry.NewScheduledRetry(3, 5*time.Millisecond)
		c := newClient(t, rt)

		_, err := Call[int](context.Background(), c, "Calculator", "Add", 1, 2)
		assert.ErrorIs(t, err, errs.ErrRetryExhausted)
	})

	t.Run("default tolerant", func(t *testing.T) {
		rt := newRuntime(port)
		rt.Retry = retry.NewScheduledRetry(2, 5*time.Millisecond)
		rt.Tolerant = tolerant.NewDefaultTolerant()
		c := newClient(t, rt)

		res, err := c.Invoke(context.Background(), message.NewRequest("Calculator", "Add", 1, 2))
		assert.NoError(t, err)
		assert.Nil(t, res)

		sum, err := Call[int](context.Background(), c, "Calculator", "Add", 1, 2)
		assert.NoError(t, err)
		assert.Zero(t, sum)
	})

	t.Run("attempted addresses", func(t *testing.T) {
		rt := newRuntime(port)
		rt.Retry = retry.NewScheduledRetry(3, 5*time.Millisecond)
		rec := &recordingTolerant{}
		rt.Tolerant = rec
		c := newClient(t, rt)

		_, err := c.Invoke(context.Background(), message.NewRequest("Calculator", "Add", 1, 2))
		require.NoError(t, err)
		assert.Equal(t, []string{rt.Config.Client.Address()}, rec.attempted)
		assert.ErrorIs(t, rec.err, errs.ErrRetryExhausted)
	})
}

func registryRuntime(t *testing.T, ports ...int) *application.Runtime {
	t.Helper()
	store := registry.NewMemoryStore()
	provider := registry.NewMemoryRegistry(store)
	require.NoError(t, provider.Init(context.Background()))
	for _, p := range ports {
		require.NoError(t, provider.Register(context.Background(), registry.ServiceInfo{
			ServiceName: "Calculator", Host: "127.0.0.1", Port: p, Weight: 1,
		}))
	}
	consumer := registry.NewMemoryRegistry(store)
	require.NoError(t, consumer.Init(context.Background()))

	rt := newRuntime(deadPort(t))
	rt.Registry = consumer
	return rt
}

func TestInvokeRoundRobinOverRegistry(t *testing.T) {
	rt := registryRuntime(t, startCalculator(t, "a"), startCalculator(t, "b"))
	c := newClient(t, rt)

	var seen []string
	for i := 0; i < 4; i++ {
		id, err := Call[string](context.Background(), c, "Calculator", "Whoami")
		require.NoError(t, err)
		seen = append(seen, id)
	}
	assert.ElementsMatch(t, []string{"a", "a", "b", "b"}, seen)
	for i := 1; i < len(seen); i++ {
		assert.NotEqual(t, seen[i-1], seen[i])
	}
}

func TestEachRetryResolvesAgain(t *testing.T) {
	rt := registryRuntime(t, deadPort(t), startCalculator(t, "live"))
	rt.Retry = retry.NewScheduledRetry(2, time.Millisecond)
	rec := &recordingTolerant{}
	rt.Tolerant = rec
	c := newClient(t, rt)

	for i := 0; i < 3; i++ {
		id, err := Call[string](context.Background(), c, "Calculator", "Whoami")
		require.NoError(t, err)
		assert.Equal(t, "live", id)
	}
	assert.Nil(t, rec.err)
}

func TestEmptyDiscoveryFallsBackToStaticAddress(t *testing.T) {
	rt := registryRuntime(t)
	rt.Config.Client.ServerPort = startCalculator(t, "static")
	c := newClient(t, rt)

	id, err := Call[string](context.Background(), c, "Calculator", "Whoami")
	require.NoError(t, err)
	assert.Equal(t, "static", id)
}

func TestNewRejectsNilRuntime(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
