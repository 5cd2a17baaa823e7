package message

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"

	"mini-rpc-core/errs"
)

// types maps a descriptor to the Go type it names.
var types = xsync.NewMapOf[string, reflect.Type]()

func init() {
	for _, v := range []any{
		false, 0, int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0), "",
		[]byte(nil), []int(nil), []int64(nil), []float64(nil), []string(nil), []any(nil),
		map[string]string(nil), map[string]int(nil), map[string]any(nil),
	} {
		types.Store(DescriptorOf(v), reflect.TypeOf(v))
	}
	// gob only knows basic types and their slices.
	gob.Register(map[string]string(nil))
	gob.Register(map[string]int(nil))
	gob.Register(map[string]any(nil))
}

// Descriptor names a Go type on the wire.
func Descriptor(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}

// DescriptorOf returns the descriptor of v's dynamic type, "" for nil.
func DescriptorOf(v any) string {
	return Descriptor(reflect.TypeOf(v))
}

// RegisterType makes a user type decodable from its descriptor.
// Gob-encoded envelopes need the same registration, so it is done here too.
func RegisterType(v any) {
	t := reflect.TypeOf(v)
	if t == nil {
		return
	}
	types.Store(Descriptor(t), t)
	gob.Register(v)
}

// LookupType resolves a descriptor registered with RegisterType or built in.
func LookupType(desc string) (reflect.Type, bool) {
	return types.Load(desc)
}

// EncodeValue renders v as JSON.
func EncodeValue(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %T: %v", errs.ErrSerialization, v, err)
	}
	return raw, nil
}

// DecodeValue rebuilds a value of the type named by desc.
// Unknown descriptors fall back to the generic JSON representation.
func DecodeValue(desc string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	t, ok := LookupType(desc)
	if !ok {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: decode %q: %v", errs.ErrSerialization, desc, err)
		}
		return v, nil
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%w: decode %q: %v", errs.ErrSerialization, desc, err)
	}
	return ptr.Elem().Interface(), nil
}
