package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-rpc-core/errs"
)

func writeProperties(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "application.properties")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProperties(t *testing.T) {
	path := writeProperties(t, `
rpc.useRegistry=true
rpc.server.serviceName=Calculator
rpc.server.port=9001
rpc.server.weight=3
rpc.client.serviceName=Calculator
rpc.client.loadBalancerPolicy=roundRobin
rpc.client.retry=scheduledRetry
rpc.client.codec=binary
rpc.client.compressor=snappy
rpc.registry.host=etcd.local
rpc.registry.maxRetries=5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.UseRegistry)
	assert.Equal(t, "Calculator", cfg.Server.ServiceName)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Server.Weight)
	assert.Equal(t, "roundRobin", cfg.Client.LoadBalancerPolicy)
	assert.Equal(t, "scheduledRetry", cfg.Client.Retry)
	assert.Equal(t, "binary", cfg.Client.Codec)
	assert.Equal(t, "snappy", cfg.Client.Compressor)
	assert.Equal(t, "etcd.local:2379", cfg.Registry.Endpoint())
	assert.Equal(t, 5, cfg.Registry.MaxRetries)
	// untouched keys keep their defaults
	assert.Equal(t, "defaultTolerant", cfg.Client.Tolerant)
	assert.Equal(t, "127.0.0.1:8080", cfg.Client.Address())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.properties"))
	require.ErrorIs(t, err, errs.ErrConfigLoad)
	require.NotNil(t, cfg)
	assert.Equal(t, Default(), cfg)
}

func TestLoadInvalidValuesFallBackToDefaults(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "port", content: "rpc.server.port=-1\n"},
		{name: "client port", content: "rpc.client.serverPort=0\n"},
		{name: "weight", content: "rpc.server.weight=-1\n"},
		{name: "transport", content: "rpc.client.transport=udp\n"},
		{name: "codec", content: "rpc.client.codec=hessian\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeProperties(t, tc.content))
			assert.ErrorIs(t, err, errs.ErrConfigLoad)
			assert.Equal(t, Default(), cfg)
		})
	}
}

func TestLoadServerPortZero(t *testing.T) {
	cfg, err := Load(writeProperties(t, "rpc.server.port=0\nrpc.server.weight=3\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Server.Weight)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeProperties(t, "rpc.server.port=9001\n")
	t.Setenv("MINIRPC_RPC_SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.UseRegistry)
	assert.Equal(t, 1, cfg.Server.Weight)
	assert.Equal(t, "random", cfg.Client.LoadBalancerPolicy)
	assert.Equal(t, "noRetry", cfg.Client.Retry)
	assert.Equal(t, "/mini-rpc", cfg.Registry.RootPath)
	assert.Contains(t, cfg.String(), "[registry] endpoint=127.0.0.1:2379")
}
