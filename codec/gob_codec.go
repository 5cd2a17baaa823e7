package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"mini-rpc-core/errs"
)

// GobCodec keeps Go types intact without descriptors.
// User types carried in Args or Data must be registered with message.RegisterType.
type GobCodec struct{}

func (c *GobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("%w: gob encode: %w", errs.ErrSerialization, err)
	}
	return buf.Bytes(), nil
}

func (c *GobCodec) Decode(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("%w: gob decode: %w", errs.ErrSerialization, err)
	}
	return nil
}

func (c *GobCodec) Type() CodecType {
	return CodecTypeGob
}
