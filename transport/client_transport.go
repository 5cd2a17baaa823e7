// Package transport implements the client send path.
//
// A connection carries at most one call at a time: the caller writes a request
// frame and blocks until the response frame arrives on the same connection.
// Concurrency comes from pooling several connections per address.
//
//	goroutine-1 ──Call──→ conn-1 ──→ Server
//	goroutine-2 ──Call──→ conn-2 ──→ Server
//	goroutine-3 ──wait for a free conn──┘
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"mini-rpc-core/codec"
	"mini-rpc-core/message"
	"mini-rpc-core/protocol"
)

// ClientTransport owns one connection and serialises calls on it.
type ClientTransport struct {
	conn       net.Conn
	codec      codec.CodecType
	compressor byte

	mu  sync.Mutex // held for a whole request/response exchange
	seq uint32
}

// NewClientTransport wraps conn; frames are written with ct and compressor.
func NewClientTransport(conn net.Conn, ct codec.CodecType, compressor byte) *ClientTransport {
	return &ClientTransport{
		conn:       conn,
		codec:      ct,
		compressor: compressor,
	}
}

// Call sends req and waits for its response. A ctx deadline becomes the connection
// deadline for the exchange. Any error leaves the stream in an unknown state and
// the connection should be discarded.
func (t *ClientTransport) Call(ctx context.Context, req *message.RpcRequest) (*message.RpcResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	header := protocol.Header{
		CodecType:  t.codec,
		Compressor: t.compressor,
		MsgType:    protocol.MsgTypeRequest,
		Seq:        t.seq,
	}
	body, err := protocol.MarshalBody(&header, req)
	if err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	defer t.conn.SetDeadline(time.Time{})

	if err := protocol.Encode(t.conn, &header, body); err != nil {
		return nil, err
	}
	replyHeader, replyBody, err := protocol.Decode(t.conn)
	if err != nil {
		return nil, err
	}
	if replyHeader.MsgType != protocol.MsgTypeResponse || replyHeader.Seq != header.Seq {
		return nil, fmt.Errorf("transport: expected response to seq %d, got type %d seq %d",
			header.Seq, replyHeader.MsgType, replyHeader.Seq)
	}

	var resp message.RpcResponse
	if err := protocol.UnmarshalBody(replyHeader, replyBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping writes a heartbeat frame. The server never answers heartbeats, so this only
// proves the write side is still open.
func (t *ClientTransport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(time.Second)); err != nil {
		return err
	}
	defer t.conn.SetWriteDeadline(time.Time{})
	return protocol.Encode(t.conn, &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}, nil)
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

func (t *ClientTransport) Close() error {
	return t.conn.Close()
}
