package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-rpc-core/codec"
	"mini-rpc-core/compress"
	"mini-rpc-core/errs"
	"mini-rpc-core/message"
)

func rawHeader(magic [3]byte, version, ct, cp, mt byte, seq, bodyLen uint32) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, magic[:])
	buf[3], buf[4], buf[5], buf[6] = version, ct, cp, mt
	binary.BigEndian.PutUint32(buf[7:11], seq)
	binary.BigEndian.PutUint32(buf[11:15], bodyLen)
	return buf
}

var goodMagic = [3]byte{MagicNumber, MagicByte2, MagicByte3}

func TestEncodeDecode(t *testing.T) {
	testCases := []struct {
		name   string
		header Header
		body   []byte
	}{
		{
			name:   "request",
			header: Header{CodecType: codec.CodecTypeJSON, MsgType: MsgTypeRequest, Seq: 12345},
			body:   []byte("hello world"),
		},
		{
			name:   "heartbeat without body",
			header: Header{CodecType: codec.CodecTypeJSON, MsgType: MsgTypeHeartbeat, Seq: 7},
		},
		{
			name:   "large binary body",
			header: Header{CodecType: codec.CodecTypeBinary, Compressor: compress.CodeLZ4, MsgType: MsgTypeResponse, Seq: 999},
			body:   bytes.Repeat([]byte{0, 1, 2, 3, 4, 5, 6, 7}, 128*1024),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := tc.header
			require.NoError(t, Encode(&buf, &h, tc.body))
			assert.Equal(t, HeaderSize+len(tc.body), buf.Len())

			got, body, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.header.CodecType, got.CodecType)
			assert.Equal(t, tc.header.Compressor, got.Compressor)
			assert.Equal(t, tc.header.MsgType, got.MsgType)
			assert.Equal(t, tc.header.Seq, got.Seq)
			assert.Equal(t, uint32(len(tc.body)), got.BodyLen)
			assert.Equal(t, len(tc.body), len(body))
			assert.True(t, bytes.Equal(tc.body, body))
		})
	}
}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	testCases := []struct {
		name    string
		frame   []byte
		wantErr string
	}{
		{
			name:    "magic",
			frame:   rawHeader([3]byte{0, 0, 0}, Version, 0, 0, 0, 1, 0),
			wantErr: "invalid magic number",
		},
		{
			name:    "version",
			frame:   rawHeader(goodMagic, 0xFF, 0, 0, 0, 1, 0),
			wantErr: "unsupported version",
		},
		{
			name:    "codec",
			frame:   rawHeader(goodMagic, Version, 9, 0, 0, 1, 0),
			wantErr: "unsupported codec type",
		},
		{
			name:    "compressor",
			frame:   rawHeader(goodMagic, Version, 0, 9, 0, 1, 0),
			wantErr: "unsupported compressor",
		},
		{
			name:    "message type",
			frame:   rawHeader(goodMagic, Version, 0, 0, 9, 1, 0),
			wantErr: "unsupported message type",
		},
		{
			name:    "oversized body",
			frame:   rawHeader(goodMagic, Version, 0, 0, 0, 1, MaxBodySize+1),
			wantErr: "exceeds limit",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decode(bytes.NewReader(tc.frame))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDecodeTruncatedBody(t *testing.T) {
	frame := append(rawHeader(goodMagic, Version, 0, 0, 0, 1, 10), []byte("short")...)
	_, _, err := Decode(bytes.NewReader(frame))
	assert.Error(t, err)
}

func TestBodyRoundTrip(t *testing.T) {
	req := message.NewRequest("Calculator", "add", 1, 2)
	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeBinary, codec.CodecTypeGob} {
		for _, cp := range []byte{compress.CodeNone, compress.CodeGzip, compress.CodeSnappy, compress.CodeLZ4} {
			h := &Header{CodecType: ct, Compressor: cp, MsgType: MsgTypeRequest}
			body, err := MarshalBody(h, req)
			require.NoError(t, err)

			var got message.RpcRequest
			require.NoError(t, UnmarshalBody(h, body, &got))
			assert.Equal(t, *req, got)
		}
	}
}

func TestUnmarshalBodyCorrupt(t *testing.T) {
	h := &Header{CodecType: codec.CodecTypeJSON, Compressor: compress.CodeSnappy}
	var got message.RpcRequest
	err := UnmarshalBody(h, []byte{0xff, 0xff, 0xff}, &got)
	assert.ErrorIs(t, err, errs.ErrSerialization)
}
