package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"mini-rpc-core/config"
	"mini-rpc-core/errs"
	"mini-rpc-core/internal/logging"
)

var _ Registry = (*EtcdRegistry)(nil)

// EtcdRegistry stores records as
//
//	Key:   {rootPath}/{ServiceName}/{host:port}
//	Value: JSON-encoded ServiceInfo
//
// Every record is attached to the lease of one concurrency.Session. The session
// keeps the lease alive; when the process dies the lease expires and etcd
// removes the records.
type EtcdRegistry struct {
	lifecycle

	endpoints  []string
	timeout    time.Duration
	maxRetries int
	rootPath   string
	ttl        int
	logger     *zap.Logger

	client *clientv3.Client
	sess   *concurrency.Session
}

// EtcdOption configures an EtcdRegistry.
type EtcdOption func(r *EtcdRegistry)

// WithEndpoints overrides the single host:port endpoint from config.
func WithEndpoints(endpoints ...string) EtcdOption {
	return func(r *EtcdRegistry) {
		r.endpoints = endpoints
	}
}

// NewEtcdRegistry returns an unconnected registry for cfg; Init connects it.
func NewEtcdRegistry(cfg config.RegistryConfig, opts ...EtcdOption) *EtcdRegistry {
	r := &EtcdRegistry{
		endpoints:  []string{cfg.Endpoint()},
		timeout:    cfg.Timeout(),
		maxRetries: cfg.MaxRetries,
		rootPath:   strings.TrimRight(cfg.RootPath, "/"),
		ttl:        cfg.SessionTTL,
		logger:     logging.Named("registry"),
	}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Second
	}
	if r.maxRetries < 0 {
		r.maxRetries = 0
	}
	if r.ttl <= 0 {
		r.ttl = 10
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init connects with bounded exponential backoff: each attempt is bounded by the
// configured timeout, at most maxRetries retries follow the first attempt, and the
// sleep between attempts starts at timeout/10 and doubles.
func (r *EtcdRegistry) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateUninitialized {
		return r.stateErr("init")
	}

	cli, err := r.connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRegistrySession, err)
	}
	sess, err := concurrency.NewSession(cli, concurrency.WithTTL(r.ttl))
	if err != nil {
		_ = cli.Close()
		return fmt.Errorf("%w: open session: %w", errs.ErrRegistrySession, err)
	}

	r.client = cli
	r.sess = sess
	r.state = StateConnected
	r.logger.Info("registry session established",
		zap.Strings("endpoints", r.endpoints),
		zap.Int64("lease", int64(sess.Lease())),
		zap.Int("ttl", r.ttl))
	return nil
}

func (r *EtcdRegistry) connect(ctx context.Context) (*clientv3.Client, error) {
	delay := r.timeout / 10
	var lastErr error
	for attempt := 0; ; attempt++ {
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   r.endpoints,
			DialTimeout: r.timeout,
			Logger:      r.logger,
		})
		if err == nil {
			sctx, cancel := context.WithTimeout(ctx, r.timeout)
			_, err = cli.Status(sctx, r.endpoints[0])
			cancel()
			if err == nil {
				return cli, nil
			}
			_ = cli.Close()
		}
		lastErr = err
		if attempt >= r.maxRetries {
			break
		}
		r.logger.Warn("registry connect failed, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, fmt.Errorf("connect %v after %d attempts: %w", r.endpoints, r.maxRetries+1, lastErr)
}

func (r *EtcdRegistry) Register(ctx context.Context, info ServiceInfo) error {
	return r.require(StateConnected, "register", func() error {
		val, err := json.Marshal(info)
		if err != nil {
			return err
		}
		_, err = r.client.Put(ctx, r.instanceKey(info), string(val), clientv3.WithLease(r.sess.Lease()))
		return err
	})
}

func (r *EtcdRegistry) Unregister(ctx context.Context, info ServiceInfo) error {
	return r.require(StateConnected, "unregister", func() error {
		_, err := r.client.Delete(ctx, r.instanceKey(info))
		return err
	})
}

func (r *EtcdRegistry) ServiceDiscovery(ctx context.Context, serviceKey string) ([]ServiceInfo, error) {
	var res []ServiceInfo
	err := r.require(StateConnected, "discover", func() error {
		var err error
		res, err = r.list(ctx, serviceKey)
		return err
	})
	return res, err
}

func (r *EtcdRegistry) list(ctx context.Context, serviceName string) ([]ServiceInfo, error) {
	resp, err := r.client.Get(ctx, r.serviceKey(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	res := make([]ServiceInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info ServiceInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			r.logger.Warn("skip malformed record", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		res = append(res, info)
	}
	return res, nil
}

// Watch emits the full instance list of serviceName after every change under its
// prefix until ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) (<-chan []ServiceInfo, error) {
	var ch chan []ServiceInfo
	err := r.require(StateConnected, "watch", func() error {
		ch = make(chan []ServiceInfo, 1)
		watchCh := r.client.Watch(clientv3.WithRequireLeader(ctx), r.serviceKey(serviceName), clientv3.WithPrefix())
		go func() {
			defer close(ch)
			for resp := range watchCh {
				if resp.Canceled {
					return
				}
				if resp.Err() != nil {
					continue
				}
				// Re-list instead of applying events one by one.
				infos, err := r.list(ctx, serviceName)
				if err != nil {
					r.logger.Warn("watch re-list failed", zap.String("service", serviceName), zap.Error(err))
					continue
				}
				select {
				case ch <- infos:
				case <-ctx.Done():
					return
				}
			}
		}()
		return nil
	})
	return ch, err
}

// Destroy closes the session, which revokes its lease and with it every record
// this registry wrote, then closes the client. Calling it again is a no-op.
func (r *EtcdRegistry) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateDestroyed:
		return nil
	case StateUninitialized:
		r.state = StateDestroyed
		return nil
	}
	r.state = StateDestroyed

	var err error
	if e := r.sess.Close(); e != nil {
		err = fmt.Errorf("close session: %w", e)
	}
	if e := r.client.Close(); e != nil && err == nil {
		err = fmt.Errorf("close client: %w", e)
	}
	r.logger.Info("registry session closed", zap.Strings("endpoints", r.endpoints))
	return err
}

func (r *EtcdRegistry) instanceKey(info ServiceInfo) string {
	return r.rootPath + "/" + info.Key()
}

func (r *EtcdRegistry) serviceKey(serviceName string) string {
	return r.rootPath + "/" + serviceName + "/"
}
