package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-rpc-core/errs"
	"mini-rpc-core/message"
)

var allCodecs = []Codec{&JSONCodec{}, &BinaryCodec{}, &GobCodec{}}

func TestRequestRoundTrip(t *testing.T) {
	for _, c := range allCodecs {
		t.Run(c.Type().String(), func(t *testing.T) {
			req := message.NewRequest("Calculator", "add", 1, 2)

			data, err := c.Encode(req)
			require.NoError(t, err)

			var got message.RpcRequest
			require.NoError(t, c.Decode(data, &got))
			assert.Equal(t, *req, got)
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		resp *message.RpcResponse
	}{
		{
			name: "data",
			resp: &message.RpcResponse{Data: 3, DataType: "int", Message: "ok"},
		},
		{
			name: "remote error",
			resp: message.ErrorResponse(errs.KindInvocation, "divide by zero"),
		},
		{
			name: "empty",
			resp: &message.RpcResponse{},
		},
	}
	for _, c := range allCodecs {
		for _, tc := range testCases {
			t.Run(c.Type().String()+"/"+tc.name, func(t *testing.T) {
				data, err := c.Encode(tc.resp)
				require.NoError(t, err)

				var got message.RpcResponse
				require.NoError(t, c.Decode(data, &got))
				assert.Equal(t, *tc.resp, got)
			})
		}
	}
}

func TestDecodeFailuresAreSerializationErrors(t *testing.T) {
	req := message.NewRequest("Calculator", "add", 1, 2)
	for _, c := range allCodecs {
		t.Run(c.Type().String(), func(t *testing.T) {
			data, err := c.Encode(req)
			require.NoError(t, err)

			var got message.RpcRequest
			err = c.Decode(data[:len(data)-3], &got)
			assert.ErrorIs(t, err, errs.ErrSerialization)
		})
	}
}

func TestBinaryCodecRejectsOtherTypes(t *testing.T) {
	c := &BinaryCodec{}
	_, err := c.Encode("not an envelope")
	assert.ErrorIs(t, err, errs.ErrSerialization)

	var s string
	assert.ErrorIs(t, c.Decode([]byte{0, 0}, &s), errs.ErrSerialization)
}

func TestParseCodecType(t *testing.T) {
	testCases := []struct {
		in      string
		want    CodecType
		wantErr bool
	}{
		{in: "json", want: CodecTypeJSON},
		{in: "", want: CodecTypeJSON},
		{in: "Binary", want: CodecTypeBinary},
		{in: "gob", want: CodecTypeGob},
		{in: "hessian", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseCodecType(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, errs.ErrSerialization)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want, GetCodec(got).Type())
		})
	}
}

func TestBinaryCodecRejectsOversizedFields(t *testing.T) {
	tooMany := make([]any, 0x10000)
	for i := range tooMany {
		tooMany[i] = 1
	}
	long := string(make([]byte, 0x10000))

	testCases := []struct {
		name string
		req  *message.RpcRequest
	}{
		{name: "too many parameters", req: message.NewRequest("Calculator", "sum", tooMany...)},
		{name: "service name too long", req: message.NewRequest(long, "add", 1, 2)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := (&BinaryCodec{}).Encode(tc.req)
			assert.ErrorIs(t, err, errs.ErrSerialization)
		})
	}
}
