// Package protocol implements the binary frame protocol for mini-rpc-core.
//
// A fixed-size 15-byte header is followed by a variable-length body. The receiver
// reads the header first to learn the body length, then reads exactly that many bytes,
// so one frame carries one complete RpcRequest or RpcResponse.
//
// Frame format:
//
//	0      3  4  5  6  7         11        15
//	┌──────┬──┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│cp│mt│   seq   │ bodyLen │    body ...    │
//	│ mrp  │01│  │  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"mini-rpc-core/codec"
	"mini-rpc-core/compress"
)

// Magic number bytes: "mrp" (mini-rpc protocol).
const (
	MagicNumber byte = 0x6d // 'm'
	MagicByte2  byte = 0x72 // 'r'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 15 // 3 (magic) + 1 (version) + 1 (codec) + 1 (compressor) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// MaxBodySize bounds the allocation a peer can force with a forged header.
	MaxBodySize uint32 = 16 << 20
)

// MsgType distinguishes request, response, and heartbeat frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // Client → Server RPC request
	MsgTypeResponse  MsgType = 1 // Server → Client RPC response
	MsgTypeHeartbeat MsgType = 2 // liveness check, no body, never answered
)

// Header is the fixed frame header.
type Header struct {
	CodecType  codec.CodecType
	Compressor byte
	MsgType    MsgType
	Seq        uint32 // echoed by the server so the client can detect a desynchronised stream
	BodyLen    uint32
}

// Encode writes a complete frame (header + body) to w. BodyLen is taken from body.
// Callers sharing a writer must serialise calls.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint32(len(body)) > MaxBodySize {
		return fmt.Errorf("body of %d bytes exceeds limit %d", len(body), MaxBodySize)
	}
	h.BodyLen = uint32(len(body))

	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = byte(h.CodecType)
	buf[5] = h.Compressor
	buf[6] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[7:11], h.Seq)
	binary.BigEndian.PutUint32(buf[11:15], h.BodyLen)

	// One write per frame keeps small frames in a single segment.
	_, err := w.Write(append(buf, body...))
	return err
}

// Decode reads a complete frame (header + body) from r and validates the header.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	ct := codec.CodecType(headerBuf[4])
	if !ct.Valid() {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}
	if _, ok := compress.Get(headerBuf[5]); !ok {
		return nil, nil, fmt.Errorf("unsupported compressor: %d", headerBuf[5])
	}
	msgType := MsgType(headerBuf[6])
	if msgType != MsgTypeRequest && msgType != MsgTypeResponse && msgType != MsgTypeHeartbeat {
		return nil, nil, fmt.Errorf("unsupported message type: %d", headerBuf[6])
	}

	seq := binary.BigEndian.Uint32(headerBuf[7:11])
	bodyLen := binary.BigEndian.Uint32(headerBuf[11:15])
	if bodyLen > MaxBodySize {
		return nil, nil, fmt.Errorf("body length %d exceeds limit %d", bodyLen, MaxBodySize)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType:  ct,
		Compressor: headerBuf[5],
		MsgType:    msgType,
		Seq:        seq,
		BodyLen:    bodyLen,
	}, body, nil
}
