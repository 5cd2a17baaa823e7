package codec

import (
	"encoding/json"
	"fmt"

	"mini-rpc-core/errs"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Envelope values travel as typed JSON; see message.EncodeValue.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: json encode: %w", errs.ErrSerialization, err)
	}
	return data, nil
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: json decode: %w", errs.ErrSerialization, err)
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
