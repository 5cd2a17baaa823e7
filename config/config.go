// Package config resolves the process configuration from an application.properties file,
// a .env file and MINIRPC_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mini-rpc-core/codec"
	"mini-rpc-core/compress"
	"mini-rpc-core/errs"
)

const (
	DefaultPath = "application.properties"
	EnvPrefix   = "MINIRPC"

	TransportTCP  = "tcp"
	TransportHTTP = "http"
)

// RpcConfig is the whole process configuration.
type RpcConfig struct {
	UseRegistry bool
	Server      ServerConfig
	Client      ClientConfig
	Registry    RegistryConfig
}

// ServerConfig describes the provider instance published to the registry.
type ServerConfig struct {
	ServiceName string
	Host        string
	Port        int
	Weight      int
	MaxWorkers  int
	Transport   string
}

// ClientConfig describes how a consumer reaches and calls a service.
type ClientConfig struct {
	ServiceName        string
	ServerHost         string
	ServerPort         int
	LoadBalancerPolicy string
	Retry              string
	Tolerant           string
	Transport          string
	Codec              string
	Compressor         string
	TimeoutMs          int
	PoolSize           int
}

// RegistryConfig locates the coordination service.
type RegistryConfig struct {
	Host       string
	Port       int
	TimeoutMs  int
	MaxRetries int
	RootPath   string
	SessionTTL int // seconds
}

// Address is the listen address.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Address is the static fallback target used when discovery yields nothing.
func (c ClientConfig) Address() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (r RegistryConfig) Endpoint() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

func (r RegistryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

var defaults = map[string]any{
	"rpc.useRegistry":               false,
	"rpc.server.serviceName":        "service",
	"rpc.server.host":               "127.0.0.1",
	"rpc.server.port":               8080,
	"rpc.server.weight":             1,
	"rpc.server.maxWorkers":         64,
	"rpc.server.transport":          TransportTCP,
	"rpc.client.serviceName":        "service",
	"rpc.client.serverHost":         "127.0.0.1",
	"rpc.client.serverPort":         8080,
	"rpc.client.loadBalancerPolicy": "random",
	"rpc.client.retry":              "noRetry",
	"rpc.client.tolerant":           "defaultTolerant",
	"rpc.client.transport":          TransportTCP,
	"rpc.client.codec":              "json",
	"rpc.client.compressor":         "none",
	"rpc.client.timeoutMs":          5000,
	"rpc.client.poolSize":           8,
	"rpc.registry.host":             "127.0.0.1",
	"rpc.registry.port":             2379,
	"rpc.registry.timeoutMs":        10000,
	"rpc.registry.maxRetries":       3,
	"rpc.registry.rootPath":         "/mini-rpc",
	"rpc.registry.sessionTtl":       10,
}

// Default returns the built-in configuration.
func Default() *RpcConfig {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

// Load reads path (DefaultPath when empty). A missing or malformed file is not fatal:
// the returned config then holds defaults plus environment overrides, and the error
// wraps errs.ErrConfigLoad so the caller can log it.
func Load(path string) (*RpcConfig, error) {
	if path == "" {
		path = DefaultPath
	}
	// .env is optional
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)
	v.SetConfigType("properties")

	var loadErr error
	if err := v.ReadInConfig(); err != nil {
		loadErr = fmt.Errorf("%w: read %s: %w", errs.ErrConfigLoad, path, err)
	}
	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Default(), errors.Join(loadErr, fmt.Errorf("%w: %w", errs.ErrConfigLoad, err))
	}
	return cfg, loadErr
}

func setDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

func fromViper(v *viper.Viper) *RpcConfig {
	return &RpcConfig{
		UseRegistry: v.GetBool("rpc.useRegistry"),
		Server: ServerConfig{
			ServiceName: v.GetString("rpc.server.serviceName"),
			Host:        v.GetString("rpc.server.host"),
			Port:        v.GetInt("rpc.server.port"),
			Weight:      v.GetInt("rpc.server.weight"),
			MaxWorkers:  v.GetInt("rpc.server.maxWorkers"),
			Transport:   v.GetString("rpc.server.transport"),
		},
		Client: ClientConfig{
			ServiceName:        v.GetString("rpc.client.serviceName"),
			ServerHost:         v.GetString("rpc.client.serverHost"),
			ServerPort:         v.GetInt("rpc.client.serverPort"),
			LoadBalancerPolicy: v.GetString("rpc.client.loadBalancerPolicy"),
			Retry:              v.GetString("rpc.client.retry"),
			Tolerant:           v.GetString("rpc.client.tolerant"),
			Transport:          v.GetString("rpc.client.transport"),
			Codec:              v.GetString("rpc.client.codec"),
			Compressor:         v.GetString("rpc.client.compressor"),
			TimeoutMs:          v.GetInt("rpc.client.timeoutMs"),
			PoolSize:           v.GetInt("rpc.client.poolSize"),
		},
		Registry: RegistryConfig{
			Host:       v.GetString("rpc.registry.host"),
			Port:       v.GetInt("rpc.registry.port"),
			TimeoutMs:  v.GetInt("rpc.registry.timeoutMs"),
			MaxRetries: v.GetInt("rpc.registry.maxRetries"),
			RootPath:   v.GetString("rpc.registry.rootPath"),
			SessionTTL: v.GetInt("rpc.registry.sessionTtl"),
		},
	}
}

// Validate checks the values a process cannot start with.
func (c *RpcConfig) Validate() error {
	var problems []error
	// port 0 binds any free port; the registry record carries the bound one
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.Weight <= 0 {
		problems = append(problems, fmt.Errorf("server.weight must be positive, got %d", c.Server.Weight))
	}
	if c.Client.ServerPort <= 0 || c.Client.ServerPort > 65535 {
		problems = append(problems, fmt.Errorf("client.serverPort %d out of range", c.Client.ServerPort))
	}
	for name, t := range map[string]string{"server.transport": c.Server.Transport, "client.transport": c.Client.Transport} {
		if t != TransportTCP && t != TransportHTTP {
			problems = append(problems, fmt.Errorf("%s: unknown transport %q", name, t))
		}
	}
	if _, err := codec.ParseCodecType(c.Client.Codec); err != nil {
		problems = append(problems, err)
	}
	if _, err := compress.Parse(c.Client.Compressor); err != nil {
		problems = append(problems, err)
	}
	if c.UseRegistry && (c.Registry.Port <= 0 || c.Registry.Host == "") {
		problems = append(problems, fmt.Errorf("registry endpoint %q invalid", c.Registry.Endpoint()))
	}
	return errors.Join(problems...)
}

func (c *RpcConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "useRegistry=%t\n", c.UseRegistry)
	fmt.Fprintf(&b, "[server] service=%s addr=%s weight=%d maxWorkers=%d transport=%s\n",
		c.Server.ServiceName, c.Server.Address(), c.Server.Weight, c.Server.MaxWorkers, c.Server.Transport)
	fmt.Fprintf(&b, "[client] service=%s addr=%s lb=%s retry=%s tolerant=%s transport=%s codec=%s compressor=%s timeout=%s pool=%d\n",
		c.Client.ServiceName, c.Client.Address(), c.Client.LoadBalancerPolicy, c.Client.Retry, c.Client.Tolerant,
		c.Client.Transport, c.Client.Codec, c.Client.Compressor, c.Client.Timeout(), c.Client.PoolSize)
	fmt.Fprintf(&b, "[registry] endpoint=%s timeout=%s maxRetries=%d root=%s sessionTtl=%ds",
		c.Registry.Endpoint(), c.Registry.Timeout(), c.Registry.MaxRetries, c.Registry.RootPath, c.Registry.SessionTTL)
	return b.String()
}
