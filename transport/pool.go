package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/silenceper/pool"

	"mini-rpc-core/config"
	"mini-rpc-core/message"
)

// TCPTransport keeps one connection pool per provider address. A connection is
// borrowed for exactly one exchange; connections that failed are closed instead
// of being returned.
type TCPTransport struct {
	opts options

	mu    sync.Mutex
	pools map[string]pool.Pool
}

var _ Transport = (*TCPTransport)(nil)

// NewTCPTransport validates the codec and compressor names in cfg.
func NewTCPTransport(cfg config.ClientConfig) (*TCPTransport, error) {
	opts, err := optionsFrom(cfg)
	if err != nil {
		return nil, err
	}
	return &TCPTransport{
		opts:  opts,
		pools: make(map[string]pool.Pool),
	}, nil
}

func (t *TCPTransport) pool(addr string) (pool.Pool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pools[addr]; ok {
		return p, nil
	}
	dialTimeout := t.opts.timeout
	p, err := pool.NewChannelPool(&pool.Config{
		InitialCap: 0,
		MaxIdle:    t.opts.poolSize,
		MaxCap:     t.opts.poolSize,
		Factory: func() (interface{}, error) {
			conn, err := net.DialTimeout("tcp", addr, dialTimeout)
			if err != nil {
				return nil, err
			}
			return NewClientTransport(conn, t.opts.codec, t.opts.compressor), nil
		},
		Close: func(v interface{}) error {
			return v.(*ClientTransport).Close()
		},
		Ping: func(v interface{}) error {
			return v.(*ClientTransport).Ping()
		},
		IdleTimeout: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: pool for %s: %w", addr, err)
	}
	t.pools[addr] = p
	return p, nil
}

// RoundTrip borrows a pooled connection to addr for one exchange.
func (t *TCPTransport) RoundTrip(ctx context.Context, addr string, req *message.RpcRequest) (*message.RpcResponse, error) {
	p, err := t.pool(addr)
	if err != nil {
		return nil, err
	}
	v, err := p.Get()
	if err != nil {
		return nil, fmt.Errorf("transport: connect %s: %w", addr, err)
	}
	ct := v.(*ClientTransport)

	ctx, cancel := t.opts.withTimeout(ctx)
	defer cancel()
	resp, err := ct.Call(ctx, req)
	if err != nil {
		_ = p.Close(v)
		return nil, fmt.Errorf("transport: call %s: %w", addr, err)
	}
	_ = p.Put(v)
	return resp, nil
}

// Idle reports the number of idle connections pooled for addr.
func (t *TCPTransport) Idle(addr string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pools[addr]; ok {
		return p.Len()
	}
	return 0
}

// Close releases every pool.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, p := range t.pools {
		p.Release()
		delete(t.pools, addr)
	}
	return nil
}
