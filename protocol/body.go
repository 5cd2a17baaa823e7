package protocol

import (
	"fmt"

	"mini-rpc-core/codec"
	"mini-rpc-core/compress"
	"mini-rpc-core/errs"
)

// MarshalBody serializes v with the codec and compressor named by h.
func MarshalBody(h *Header, v any) ([]byte, error) {
	data, err := codec.GetCodec(h.CodecType).Encode(v)
	if err != nil {
		return nil, err
	}
	c, ok := compress.Get(h.Compressor)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported compressor %d", errs.ErrSerialization, h.Compressor)
	}
	out, err := c.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("%w: compress: %w", errs.ErrSerialization, err)
	}
	return out, nil
}

// UnmarshalBody reverses MarshalBody into v.
func UnmarshalBody(h *Header, body []byte, v any) error {
	c, ok := compress.Get(h.Compressor)
	if !ok {
		return fmt.Errorf("%w: unsupported compressor %d", errs.ErrSerialization, h.Compressor)
	}
	data, err := c.Uncompress(body)
	if err != nil {
		return fmt.Errorf("%w: uncompress: %w", errs.ErrSerialization, err)
	}
	return codec.GetCodec(h.CodecType).Decode(data, v)
}

// HTTP headers carrying the codec and compressor codes of a POST body.
const (
	HeaderCodec      = "X-Rpc-Codec"
	HeaderCompressor = "X-Rpc-Compressor"
)
