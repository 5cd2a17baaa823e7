package transport

import (
	"context"
	"fmt"
	"time"

	"mini-rpc-core/codec"
	"mini-rpc-core/compress"
	"mini-rpc-core/config"
	"mini-rpc-core/message"
)

// Transport performs one request/response exchange with the provider at addr.
type Transport interface {
	RoundTrip(ctx context.Context, addr string, req *message.RpcRequest) (*message.RpcResponse, error)
	Close() error
}

// options shared by both transports.
type options struct {
	codec      codec.CodecType
	compressor byte
	timeout    time.Duration
	poolSize   int
}

func optionsFrom(cfg config.ClientConfig) (options, error) {
	ct, err := codec.ParseCodecType(cfg.Codec)
	if err != nil {
		return options{}, err
	}
	cp, err := compress.Parse(cfg.Compressor)
	if err != nil {
		return options{}, err
	}
	o := options{
		codec:      ct,
		compressor: cp.Code(),
		timeout:    cfg.Timeout(),
		poolSize:   cfg.PoolSize,
	}
	if o.poolSize <= 0 {
		o.poolSize = 1
	}
	return o, nil
}

// withTimeout applies the configured call timeout unless ctx already has a deadline.
func (o options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || o.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.timeout)
}

// New picks the transport named by cfg.Transport.
func New(cfg config.ClientConfig) (Transport, error) {
	switch cfg.Transport {
	case "", config.TransportTCP:
		return NewTCPTransport(cfg)
	case config.TransportHTTP:
		return NewHTTPTransport(cfg)
	}
	return nil, fmt.Errorf("transport: unknown transport %q", cfg.Transport)
}
