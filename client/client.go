// Package client is the consumer side: it turns a call into an RpcRequest, finds a
// provider, and runs the exchange under the runtime's retry and tolerant policies.
package client

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mini-rpc-core/application"
	"mini-rpc-core/config"
	"mini-rpc-core/errs"
	"mini-rpc-core/internal/logging"
	"mini-rpc-core/message"
	"mini-rpc-core/transport"
)

const instrumentationName = "mini-rpc-core/client"

// Client sends requests through the runtime's registry, load balancer, retry and tolerant policies.
type Client struct {
	rt        *application.Runtime
	transport transport.Transport
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(c *Client)

// WithTransport replaces the transport built from the client config.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithTracer replaces the tracer taken from the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithLogger sets the logger used for exhausted calls.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New builds a client for rt, with a transport chosen by the client config unless one is given.
func New(rt *application.Runtime, opts ...Option) (*Client, error) {
	if rt == nil {
		return nil, fmt.Errorf("client: nil runtime")
	}
	c := &Client{
		rt:     rt,
		tracer: otel.Tracer(instrumentationName),
		logger: logging.Named("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		t, err := transport.New(rt.Config.Client)
		if err != nil {
			return nil, err
		}
		c.transport = t
	}
	return c, nil
}

// Invoke performs req and returns the provider's result.
//
// Every attempt resolves its own target, so a retry may land on another
// instance. A failure reported by the provider is an answer, not a transport
// fault: it is returned as *errs.RemoteInvocationError and never retried. When
// the retry policy gives up, the tolerant policy decides the outcome, which may
// be a nil result with a nil error.
func (c *Client) Invoke(ctx context.Context, req *message.RpcRequest) (result any, err error) {
	ctx, span := c.tracer.Start(ctx, req.ServiceName+"/"+req.MethodName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "mini-rpc"),
			attribute.String("rpc.service", req.ServiceName),
			attribute.String("rpc.method", req.MethodName),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "call failed")
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()
	}()

	attempted := newAddrSet()
	resp, err := c.rt.Retry.DoRetry(ctx, func(ctx context.Context) (*message.RpcResponse, error) {
		addr, err := c.resolve(ctx)
		if err != nil {
			return nil, err
		}
		attempted.add(addr)
		span.AddEvent("attempt", trace.WithAttributes(attribute.String("net.peer.addr", addr)))
		return c.transport.RoundTrip(ctx, addr, req)
	})
	if err != nil {
		c.logger.Debug("call exhausted retries",
			zap.String("service", req.ServiceName),
			zap.String("method", req.MethodName),
			zap.Strings("attempted", attempted.list()),
			zap.Error(err))
		resp, err = c.rt.Tolerant.Tolerant(attempted.list(), err)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, nil
		}
	}
	if resp.Error != nil {
		return nil, &errs.RemoteInvocationError{
			Service: req.ServiceName,
			Method:  req.MethodName,
			Kind:    resp.Error.Kind,
			Message: resp.Error.Message,
		}
	}
	return resp.Data, nil
}

// resolve picks the target for one attempt: a discovered instance chosen by the
// load balancer, or the static client address when there is no registry or it
// knows no instance.
func (c *Client) resolve(ctx context.Context) (string, error) {
	cfg := c.rt.Config.Client
	if c.rt.Registry == nil {
		return c.address(cfg.Address()), nil
	}
	instances, err := c.rt.Registry.ServiceDiscovery(ctx, cfg.ServiceName)
	if err != nil {
		return "", fmt.Errorf("client: discover %s: %w", cfg.ServiceName, err)
	}
	if len(instances) == 0 {
		return c.address(cfg.Address()), nil
	}
	picked, err := c.rt.LoadBalancer.Select(instances)
	if err != nil {
		return "", err
	}
	if cfg.Transport == config.TransportHTTP {
		return picked.URL(), nil
	}
	return picked.Address(), nil
}

func (c *Client) address(hostPort string) string {
	if c.rt.Config.Client.Transport == config.TransportHTTP {
		return "http://" + hostPort
	}
	return hostPort
}

// Close releases pooled connections.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Call invokes service.method and converts the result to T. A nil result, such
// as the one produced by the default tolerant policy, yields the zero T.
//
// Parameter descriptors come from the dynamic types of args, so every argument
// must be non-nil or a typed nil. Proxies built by InitProxy use the declared
// parameter types and have no such restriction.
func Call[T any](ctx context.Context, c *Client, service, method string, args ...any) (T, error) {
	var zero T
	res, err := c.Invoke(ctx, message.NewRequest(service, method, args...))
	if err != nil || res == nil {
		return zero, err
	}
	if v, ok := res.(T); ok {
		return v, nil
	}
	var out T
	if err := convert(res, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// addrSet keeps insertion order so logs read in attempt order.
type addrSet struct {
	seen  map[string]struct{}
	order []string
}

func newAddrSet() *addrSet {
	return &addrSet{seen: make(map[string]struct{})}
}

func (s *addrSet) add(addr string) {
	if _, ok := s.seen[addr]; ok {
		return
	}
	s.seen[addr] = struct{}{}
	s.order = append(s.order, addr)
}

func (s *addrSet) list() []string {
	return append([]string(nil), s.order...)
}
