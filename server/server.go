// Package server implements the provider side: capability tables, the local
// registry, the dispatch handler and the TCP/HTTP accept paths.
//
// Request processing pipeline:
//
//	Accept conn → worker (one per connection, bounded) → read frame
//	  → decode RpcRequest → middleware chain → dispatch (capability table) → encode → write frame
//	  → read next frame on the same connection
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mini-rpc-core/errs"
	"mini-rpc-core/internal/logging"
	"mini-rpc-core/message"
	"mini-rpc-core/middleware"
	"mini-rpc-core/protocol"
)

// DefaultMaxWorkers bounds concurrently served connections when no option is given.
const DefaultMaxWorkers = 64

// Server dispatches requests to the services in its LocalRegistry.
type Server struct {
	local       *LocalRegistry
	maxWorkers  int
	logger      *zap.Logger
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // built once: middleware(middleware(...(dispatch)))

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	conns    map[net.Conn]struct{}

	workers   errgroup.Group
	acceptors sync.WaitGroup // running accept loops; workers.Go is only called from them
	inflight  sync.WaitGroup // requests between decode and response write
	shutdown atomic.Bool
}

// Option configures a Server.
type Option func(s *Server)

// WithMaxWorkers bounds the number of connections served at once. Further
// connections wait in the accept queue.
func WithMaxWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithLocalRegistry shares a local registry between servers.
func WithLocalRegistry(r *LocalRegistry) Option {
	return func(s *Server) {
		s.local = r
	}
}

// WithLogger replaces the "server" logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server with an empty local registry.
func NewServer(opts ...Option) *Server {
	s := &Server{
		local:      NewLocalRegistry(),
		maxWorkers: DefaultMaxWorkers,
		logger:     logging.Named("server"),
		conns:      make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.workers.SetLimit(s.maxWorkers)
	s.buildHandler()
	return s
}

// Use registers a middleware. Middlewares are applied in the order they are added
// and must be registered before serving starts.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
	svr.buildHandler()
}

// Register adds svc to the local registry.
func (svr *Server) Register(svc *Service) {
	svr.local.Register(svc)
}

// LocalRegistry returns the table requests are dispatched against.
func (svr *Server) LocalRegistry() *LocalRegistry {
	return svr.local
}

// Addr returns the bound address, nil before serving.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

func (svr *Server) buildHandler() {
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)
}

// Serve listens on address and serves framed TCP until Shutdown.
func (svr *Server) Serve(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(l)
}

// ServeListener runs the accept loop on l. It returns nil after Shutdown.
func (svr *Server) ServeListener(l net.Listener) error {
	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		return l.Close()
	}
	svr.listener = l
	svr.acceptors.Add(1)
	svr.mu.Unlock()
	defer svr.acceptors.Done()
	svr.logger.Info("serving", zap.Stringer("addr", l.Addr()), zap.Strings("services", svr.local.Names()))

	for {
		conn, err := l.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		if !svr.track(conn) {
			_ = conn.Close()
			return nil
		}
		// Blocks while maxWorkers connections are being served.
		svr.workers.Go(func() error {
			defer svr.untrack(conn)
			svr.handleConn(conn)
			return nil
		})
	}
}

func (svr *Server) track(conn net.Conn) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[conn] = struct{}{}
	return true
}

func (svr *Server) untrack(conn net.Conn) {
	svr.mu.Lock()
	delete(svr.conns, conn)
	svr.mu.Unlock()
	_ = conn.Close()
}

// handleConn serves one persistent connection: one request at a time, one response
// per request. Business failures are answered; only I/O and framing errors end it.
func (svr *Server) handleConn(conn net.Conn) {
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if !svr.shutdown.Load() && !errors.Is(err, net.ErrClosed) && !isEOF(err) {
				svr.logger.Warn("closing connection", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			}
			return
		}
		if header.MsgType != protocol.MsgTypeRequest {
			continue
		}
		if err := svr.handleRequest(conn, header, body); err != nil {
			svr.logger.Warn("write response failed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			return
		}
	}
}

func (svr *Server) handleRequest(conn net.Conn, header *protocol.Header, body []byte) error {
	svr.inflight.Add(1)
	defer svr.inflight.Done()

	resp := svr.serveBody(context.Background(), header, body)

	replyHeader := protocol.Header{
		CodecType:  header.CodecType,
		Compressor: header.Compressor,
		MsgType:    protocol.MsgTypeResponse,
		Seq:        header.Seq,
	}
	out, err := protocol.MarshalBody(&replyHeader, resp)
	if err != nil {
		// the result itself could not be encoded; tell the caller instead
		svr.logger.Error("encode response", zap.Error(err))
		out, err = protocol.MarshalBody(&replyHeader, message.ErrorResponse(errs.KindInvocation, "encode response: %v", err))
		if err != nil {
			return err
		}
	}
	return protocol.Encode(conn, &replyHeader, out)
}

// serveBody decodes a request body and runs it through the handler chain.
func (svr *Server) serveBody(ctx context.Context, header *protocol.Header, body []byte) *message.RpcResponse {
	var req message.RpcRequest
	if err := protocol.UnmarshalBody(header, body, &req); err != nil {
		return message.ErrorResponse(errs.KindBadRequest, "decode request: %v", err)
	}
	return svr.handler(ctx, &req)
}

// dispatch is the innermost handler: capability lookup, method lookup, invocation.
func (svr *Server) dispatch(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
	svc, ok := svr.local.Get(req.ServiceName)
	if !ok {
		return message.ErrorResponse(errs.KindServiceNotFound, "service %q not found", req.ServiceName)
	}
	method, ok := svc.lookup(req.Key())
	if !ok {
		return message.ErrorResponse(errs.KindMethodNotFound, "method %s not found on %s", req.Key(), req.ServiceName)
	}
	if len(req.Args) != len(method.paramTypes) {
		return message.ErrorResponse(errs.KindBadRequest, "%s expects %d arguments, got %d", req.Key(), len(method.paramTypes), len(req.Args))
	}
	return invoke(ctx, method, req.Args)
}

func invoke(ctx context.Context, method *methodType, args []any) (resp *message.RpcResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = message.ErrorResponse(errs.KindPanic, "%s panicked: %v", method.name, r)
		}
	}()
	data, err := method.handler(ctx, args)
	if err != nil {
		kind := errs.KindInvocation
		if errors.Is(err, errs.ErrBadRequest) {
			kind = errs.KindBadRequest
		}
		return message.ErrorResponse(kind, "%v", err)
	}
	return &message.RpcResponse{
		Data:     data,
		DataType: method.returnType,
		Message:  "ok",
	}
}

// Shutdown stops accepting, waits up to timeout for in-flight requests, then closes
// every open connection and waits for the workers to return.
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.Lock()
	svr.shutdown.Store(true)
	l, httpSrv := svr.listener, svr.httpSrv
	svr.mu.Unlock()

	var httpErr error
	switch {
	case httpSrv != nil:
		// closes the listener too
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		httpErr = httpSrv.Shutdown(ctx)
		cancel()
	case l != nil:
		_ = l.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.inflight.Wait()
		close(done)
	}()
	var waitErr error
	select {
	case <-done:
	case <-time.After(timeout):
		waitErr = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	svr.mu.Lock()
	for conn := range svr.conns {
		_ = conn.Close()
	}
	svr.mu.Unlock()
	// An acceptor blocked on a free worker slot gets one once the closed
	// connections' workers return; it must exit before workers.Wait.
	svr.acceptors.Wait()
	_ = svr.workers.Wait()

	svr.logger.Info("server stopped")
	return errors.Join(waitErr, httpErr)
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
