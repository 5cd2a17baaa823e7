package codec

import (
	"encoding/binary"
	"fmt"

	"mini-rpc-core/errs"
	"mini-rpc-core/message"
)

// BinaryCodec writes envelopes as big-endian length-prefixed fields.
//
// Request:  svc(u16) method(u16) count(u16) [type(u16)]* [arg(u32)]*
// Response: dataType(u16) data(u32) message(u32) hasErr(u8) [kind(u16) errMsg(u32)]
//
// Argument and data values are typed JSON (message.EncodeValue).
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *message.RpcRequest:
		return encodeRequest(msg)
	case *message.RpcResponse:
		return encodeResponse(msg)
	}
	return nil, fmt.Errorf("%w: BinaryCodec cannot encode %T", errs.ErrSerialization, v)
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	switch msg := v.(type) {
	case *message.RpcRequest:
		return decodeRequest(data, msg)
	case *message.RpcResponse:
		return decodeResponse(data, msg)
	}
	return fmt.Errorf("%w: BinaryCodec cannot decode into %T", errs.ErrSerialization, v)
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func encodeRequest(req *message.RpcRequest) ([]byte, error) {
	if len(req.Args) != len(req.ParameterTypes) {
		return nil, fmt.Errorf("%w: %d args for %d parameter types", errs.ErrSerialization, len(req.Args), len(req.ParameterTypes))
	}
	var w writer
	w.str16(req.ServiceName)
	w.str16(req.MethodName)
	w.count16(len(req.ParameterTypes))
	for _, t := range req.ParameterTypes {
		w.str16(t)
	}
	for _, a := range req.Args {
		raw, err := message.EncodeValue(a)
		if err != nil {
			return nil, err
		}
		w.bytes32(raw)
	}
	return w.buf, w.err
}

func decodeRequest(data []byte, req *message.RpcRequest) error {
	r := reader{buf: data}
	svc := r.str16()
	method := r.str16()
	n := int(r.u16())
	paramTypes := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		paramTypes = append(paramTypes, r.str16())
	}
	args := make([]any, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		raw := r.bytes32()
		if r.err != nil {
			break
		}
		v, err := message.DecodeValue(paramTypes[i], raw)
		if err != nil {
			return err
		}
		args = append(args, v)
	}
	if err := r.done(); err != nil {
		return err
	}
	req.ServiceName = svc
	req.MethodName = method
	req.ParameterTypes = paramTypes
	req.Args = args
	return nil
}

func encodeResponse(resp *message.RpcResponse) ([]byte, error) {
	var w writer
	w.str16(resp.DataType)
	var raw []byte
	if resp.Data != nil {
		var err error
		if raw, err = message.EncodeValue(resp.Data); err != nil {
			return nil, err
		}
	}
	w.bytes32(raw)
	w.bytes32([]byte(resp.Message))
	if resp.Error == nil {
		w.u8(0)
	} else {
		w.u8(1)
		w.str16(resp.Error.Kind)
		w.bytes32([]byte(resp.Error.Message))
	}
	return w.buf, w.err
}

func decodeResponse(data []byte, resp *message.RpcResponse) error {
	r := reader{buf: data}
	dataType := r.str16()
	raw := r.bytes32()
	msg := string(r.bytes32())
	var remote *message.RemoteError
	if r.u8() == 1 {
		remote = &message.RemoteError{Kind: r.str16()}
		remote.Message = string(r.bytes32())
	}
	if err := r.done(); err != nil {
		return err
	}
	v, err := message.DecodeValue(dataType, raw)
	if err != nil {
		return err
	}
	resp.Data = v
	resp.DataType = dataType
	resp.Message = msg
	resp.Error = remote
	return nil
}

type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v byte) {
	w.buf = append(w.buf, v)
}

func (w *writer) u16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

// count16 writes a list length, which the layout caps at 65535.
func (w *writer) count16(n int) {
	if n > 0xFFFF {
		w.err = fmt.Errorf("%w: %d entries exceed 65535", errs.ErrSerialization, n)
		return
	}
	w.u16(uint16(n))
}

func (w *writer) str16(s string) {
	if len(s) > 0xFFFF {
		w.err = fmt.Errorf("%w: field of %d bytes exceeds 65535", errs.ErrSerialization, len(s))
		return
	}
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bytes32(b []byte) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// reader records the first short read; later calls return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: truncated input at offset %d", errs.ErrSerialization, r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) str16() string {
	return string(r.take(int(r.u16())))
}

func (r *reader) bytes32() []byte {
	b := r.take(4)
	if b == nil {
		return nil
	}
	n := binary.BigEndian.Uint32(b)
	out := r.take(int(n))
	if out == nil {
		return nil
	}
	return append([]byte(nil), out...)
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d trailing bytes", errs.ErrSerialization, len(r.buf)-r.off)
	}
	return nil
}
