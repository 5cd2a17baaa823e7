package server

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mini-rpc-core/codec"
	"mini-rpc-core/compress"
	"mini-rpc-core/errs"
	"mini-rpc-core/message"
	"mini-rpc-core/protocol"
)

// ServeHTTPListener serves the HTTP variant on l: every POST body is one serialized
// RpcRequest and the response body is one serialized RpcResponse.
func (svr *Server) ServeHTTPListener(l net.Listener) error {
	srv := &http.Server{Handler: svr}
	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		return nil
	}
	svr.listener = l
	svr.httpSrv = srv
	svr.acceptors.Add(1)
	svr.mu.Unlock()
	defer svr.acceptors.Done()
	svr.logger.Info("serving http", zap.Stringer("addr", l.Addr()), zap.Strings("services", svr.local.Names()))

	if err := srv.Serve(l); err != http.ErrServerClosed && !svr.shutdown.Load() {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (svr *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	header, err := headerFromHTTP(r.Header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(protocol.MaxBodySize)+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	svr.inflight.Add(1)
	defer svr.inflight.Done()

	var resp *message.RpcResponse
	if len(body) > int(protocol.MaxBodySize) {
		resp = message.ErrorResponse(errs.KindBadRequest, "body exceeds %d bytes", protocol.MaxBodySize)
	} else {
		resp = svr.serveBody(r.Context(), header, body)
	}

	out, err := protocol.MarshalBody(header, resp)
	if err != nil {
		svr.logger.Error("encode response", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set(protocol.HeaderCodec, strconv.Itoa(int(header.CodecType)))
	w.Header().Set(protocol.HeaderCompressor, strconv.Itoa(int(header.Compressor)))
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, bytes.NewReader(out))
}

// headerFromHTTP reads the codec and compressor codes; absent headers mean JSON, uncompressed.
func headerFromHTTP(h http.Header) (*protocol.Header, error) {
	ph := &protocol.Header{MsgType: protocol.MsgTypeRequest}
	if v := h.Get(protocol.HeaderCodec); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil || !codec.CodecType(n).Valid() {
			return nil, &badHeaderError{name: protocol.HeaderCodec, value: v}
		}
		ph.CodecType = codec.CodecType(n)
	}
	if v := h.Get(protocol.HeaderCompressor); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, &badHeaderError{name: protocol.HeaderCompressor, value: v}
		}
		if _, ok := compress.Get(byte(n)); !ok {
			return nil, &badHeaderError{name: protocol.HeaderCompressor, value: v}
		}
		ph.Compressor = byte(n)
	}
	return ph, nil
}

type badHeaderError struct {
	name, value string
}

func (e *badHeaderError) Error() string {
	return "invalid " + e.name + " header " + strconv.Quote(e.value)
}
