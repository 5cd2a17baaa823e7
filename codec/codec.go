// Package codec serializes RpcRequest and RpcResponse envelopes.
package codec

import (
	"fmt"
	"strings"

	"mini-rpc-core/errs"
)

// CodecType is the codec byte of the frame header.
type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
	CodecTypeGob    CodecType = 2
)

// Codec turns envelopes into bytes and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Binary, 2=Gob
}

// Valid reports whether t names a known codec.
func (t CodecType) Valid() bool {
	return t <= CodecTypeGob
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	case CodecTypeGob:
		return "gob"
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}

// GetCodec falls back to JSON for unknown types.
func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeBinary:
		return &BinaryCodec{}
	case CodecTypeGob:
		return &GobCodec{}
	}
	return &JSONCodec{}
}

// ParseCodecType maps a config name to a codec type.
func ParseCodecType(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return CodecTypeJSON, nil
	case "binary":
		return CodecTypeBinary, nil
	case "gob":
		return CodecTypeGob, nil
	}
	return 0, fmt.Errorf("%w: unknown codec %q", errs.ErrSerialization, name)
}
