package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mini-rpc-core/config"
	"mini-rpc-core/message"
	"mini-rpc-core/protocol"
)

// HTTPTransport POSTs each serialized RpcRequest to http://addr/.
type HTTPTransport struct {
	opts   options
	client *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport keeps up to PoolSize idle connections per host.
func NewHTTPTransport(cfg config.ClientConfig) (*HTTPTransport, error) {
	opts, err := optionsFrom(cfg)
	if err != nil {
		return nil, err
	}
	return &HTTPTransport{
		opts: opts,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: opts.poolSize,
			},
		},
	}, nil
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, addr string, req *message.RpcRequest) (*message.RpcResponse, error) {
	header := &protocol.Header{CodecType: t.opts.codec, Compressor: t.opts.compressor, MsgType: protocol.MsgTypeRequest}
	body, err := protocol.MarshalBody(header, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := t.opts.withTimeout(ctx)
	defer cancel()
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + addr + "/"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(protocol.HeaderCodec, strconv.Itoa(int(header.CodecType)))
	httpReq.Header.Set(protocol.HeaderCompressor, strconv.Itoa(int(header.Compressor)))
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: post %s: %w", url, err)
	}
	defer httpResp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(httpResp.Body, int64(protocol.MaxBodySize)))
	if err != nil {
		return nil, fmt.Errorf("transport: read %s: %w", url, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: %s answered %s: %s", url, httpResp.Status, strings.TrimSpace(string(out)))
	}

	var resp message.RpcResponse
	if err := protocol.UnmarshalBody(header, out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
