// Package bootstrap wires a runtime, a server and a client into provider and
// consumer processes.
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"mini-rpc-core/application"
	"mini-rpc-core/config"
	"mini-rpc-core/internal/logging"
	"mini-rpc-core/middleware"
	"mini-rpc-core/registry"
	"mini-rpc-core/server"
)

// Provider serves a set of capabilities and publishes itself to the runtime's
// registry while it runs.
type Provider struct {
	Runtime *application.Runtime
	Server  *server.Server

	logger *zap.Logger

	mu       sync.Mutex
	info     *registry.ServiceInfo
	serveErr chan error
}

// NewProvider builds the server from the server section of the runtime config
// and feeds services into its local registry.
func NewProvider(rt *application.Runtime, services ...*server.Service) *Provider {
	logger := logging.Named("provider")
	svr := server.NewServer(
		server.WithMaxWorkers(rt.Config.Server.MaxWorkers),
		server.WithLogger(logging.Named("server")),
	)
	svr.Use(middleware.LoggingMiddleware(logging.Named("middleware")))
	for _, svc := range services {
		svr.Register(svc)
	}
	return &Provider{Runtime: rt, Server: svr, logger: logger}
}

// Export adds rcvr under name, see server.NewReceiverService.
func (p *Provider) Export(name string, rcvr any) error {
	svc, err := server.NewReceiverService(name, rcvr)
	if err != nil {
		return err
	}
	p.Server.Register(svc)
	return nil
}

// Start listens on the configured address, registers the instance when a
// registry is configured and serves in the background. Port 0 picks a free port,
// and the registered record carries the port actually bound.
func (p *Provider) Start(ctx context.Context) error {
	cfg := p.Runtime.Config.Server
	l, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return fmt.Errorf("bootstrap: listen %s: %w", cfg.Address(), err)
	}

	info := registry.ServiceInfo{
		ServiceName: cfg.ServiceName,
		Host:        cfg.Host,
		Port:        l.Addr().(*net.TCPAddr).Port,
		Weight:      cfg.Weight,
	}
	if reg := p.Runtime.Registry; reg != nil {
		if err := reg.Register(ctx, info); err != nil {
			_ = l.Close()
			return fmt.Errorf("bootstrap: register %s: %w", info.Key(), err)
		}
		p.logger.Info("registered", zap.String("service", info.ServiceName), zap.String("addr", info.Address()))
	}

	serveErr := make(chan error, 1)
	p.mu.Lock()
	p.info = &info
	p.serveErr = serveErr
	p.mu.Unlock()

	go func() {
		if cfg.Transport == config.TransportHTTP {
			serveErr <- p.Server.ServeHTTPListener(l)
		} else {
			serveErr <- p.Server.ServeListener(l)
		}
		close(serveErr)
	}()
	return nil
}

// Addr is the bound address, empty before Start.
func (p *Provider) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.info == nil {
		return ""
	}
	return p.info.Address()
}

// Wait blocks until the server stops and returns its error.
func (p *Provider) Wait() error {
	p.mu.Lock()
	ch := p.serveErr
	p.mu.Unlock()
	if ch == nil {
		return nil
	}
	return <-ch
}

// Stop withdraws the registry record, then shuts the server down.
func (p *Provider) Stop(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	info := p.info
	p.mu.Unlock()
	if info != nil && p.Runtime.Registry != nil {
		if err := p.Runtime.Registry.Unregister(ctx, *info); err != nil {
			p.logger.Warn("unregister failed", zap.String("addr", info.Address()), zap.Error(err))
		}
	}
	return p.Server.Shutdown(timeout)
}
