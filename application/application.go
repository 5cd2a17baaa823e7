// Package application holds the process-wide runtime: the resolved configuration,
// the registry session and the strategy instances shared by every consumer and
// provider in the process.
package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"go.uber.org/zap"

	"mini-rpc-core/config"
	"mini-rpc-core/errs"
	"mini-rpc-core/internal/logging"
	"mini-rpc-core/loadbalance"
	"mini-rpc-core/registry"
	"mini-rpc-core/retry"
	"mini-rpc-core/spi"
	"mini-rpc-core/tolerant"
)

// Runtime is the state shared by every consumer and provider of a process.
type Runtime struct {
	Config *config.RpcConfig
	// Registry is nil when the process runs without one.
	Registry     registry.Registry
	LoadBalancer loadbalance.LoadBalancer
	Retry        retry.Retryer
	Tolerant     tolerant.Tolerant
	Loader       *spi.Loader

	logger *zap.Logger
}

// Option configures New.
type Option func(o *options)

type options struct {
	registry registry.Registry
	roots    []fs.FS
	logger   *zap.Logger
}

// WithRegistry overrides the registry implementation. It is initialised by New
// like the default one.
func WithRegistry(r registry.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithBindings adds strategy binding roots searched after the built-in ones.
func WithBindings(roots ...fs.FS) Option {
	return func(o *options) {
		o.roots = append(o.roots, roots...)
	}
}

// WithLogger replaces the "application" logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New builds a runtime from cfg. Strategies are resolved once here, so stateful
// ones such as round-robin keep their state for the life of the runtime.
func New(ctx context.Context, cfg *config.RpcConfig, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{logger: logging.Named("application")}
	for _, opt := range opts {
		opt(&o)
	}

	loader := spi.NewLoader()
	if err := loader.Load(append([]fs.FS{spi.Defaults()}, o.roots...)...); err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Loader: loader, logger: o.logger}

	var err error
	if rt.LoadBalancer, err = spi.Load[loadbalance.LoadBalancer](loader, spi.CapabilityLoadBalancer, cfg.Client.LoadBalancerPolicy); err != nil {
		return nil, fmt.Errorf("application: load balancer policy: %w", err)
	}
	if rt.Retry, err = spi.Load[retry.Retryer](loader, spi.CapabilityRetryer, cfg.Client.Retry); err != nil {
		return nil, fmt.Errorf("application: retry policy: %w", err)
	}
	if rt.Tolerant, err = spi.Load[tolerant.Tolerant](loader, spi.CapabilityTolerant, cfg.Client.Tolerant); err != nil {
		return nil, fmt.Errorf("application: tolerant policy: %w", err)
	}

	if cfg.UseRegistry || o.registry != nil {
		reg := o.registry
		if reg == nil {
			reg = registry.NewEtcdRegistry(cfg.Registry)
		}
		if err := reg.Init(ctx); err != nil {
			return nil, fmt.Errorf("application: registry init: %w", err)
		}
		rt.Registry = reg
	}

	o.logger.Info("runtime ready",
		zap.Bool("registry", rt.Registry != nil),
		zap.String("loadBalancer", rt.LoadBalancer.Name()),
		zap.String("retry", cfg.Client.Retry),
		zap.String("tolerant", cfg.Client.Tolerant))
	return rt, nil
}

// Close ends the registry session. Records published through it disappear.
func (rt *Runtime) Close() error {
	if rt.Registry == nil {
		return nil
	}
	return rt.Registry.Destroy()
}

var (
	once    sync.Once
	current *Runtime
	initErr error
)

// Init builds the process runtime from the properties file at path. Only the
// first call does any work; later calls return its result. A configuration
// that cannot be read is logged and replaced by defaults.
func Init(ctx context.Context, path string, opts ...Option) (*Runtime, error) {
	once.Do(func() {
		logger := logging.Named("application")
		cfg, err := config.Load(path)
		if err != nil {
			if !errors.Is(err, errs.ErrConfigLoad) {
				initErr = err
				return
			}
			logger.Warn("using default configuration", zap.Error(err))
		}
		logger.Debug("configuration\n" + cfg.String())
		current, initErr = New(ctx, cfg, opts...)
	})
	return current, initErr
}

// Get returns the process runtime, initialising it from the default properties
// file on first use.
func Get() (*Runtime, error) {
	return Init(context.Background(), config.DefaultPath)
}
