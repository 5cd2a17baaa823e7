package spi

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-rpc-core/errs"
)

type greeter interface{ Greet() string }

type counter struct{ n int }

func (c *counter) Greet() string {
	c.n++
	return "hello"
}

type loud struct{}

func (loud) Greet() string { return "HELLO" }

func init() {
	RegisterFactory("test.Counter", func() any { return &counter{} })
	RegisterFactory("test.Loud", func() any { return loud{} })
	RegisterFactory("test.NotAGreeter", func() any { return 42 })
}

func resource(content string) fstest.MapFS {
	return fstest.MapFS{
		ResourceDir + "/test.Greeter": &fstest.MapFile{Data: []byte(content)},
	}
}

func TestLoadDefaults(t *testing.T) {
	l := NewLoader()
	require.NoError(t, l.Load())

	testCases := []struct {
		capability string
		key        string
		want       string
	}{
		{CapabilityLoadBalancer, "random", "loadbalance.Random"},
		{CapabilityLoadBalancer, "roundRobin", "loadbalance.RoundRobin"},
		{CapabilityLoadBalancer, "weightedRandom", "loadbalance.WeightedRandom"},
		{CapabilityRetryer, "noRetry", "retry.NoRetry"},
		{CapabilityRetryer, "scheduledRetry", "retry.ScheduledRetry"},
		{CapabilityTolerant, "defaultTolerant", "tolerant.DefaultTolerant"},
	}
	for _, tc := range testCases {
		t.Run(tc.capability+"/"+tc.key, func(t *testing.T) {
			got, err := l.Resolve(tc.capability, tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoadLastReadWins(t *testing.T) {
	l := NewLoader()
	first := resource("# first copy\ncounter=test.Counter\nshout=test.Counter\n")
	second := resource("shout=test.Loud\n")
	require.NoError(t, l.Load(first, second))

	got, err := l.Resolve("test.Greeter", "shout")
	require.NoError(t, err)
	assert.Equal(t, "test.Loud", got)

	got, err = l.Resolve("test.Greeter", "counter")
	require.NoError(t, err)
	assert.Equal(t, "test.Counter", got)

	assert.Equal(t, map[string]string{"counter": "test.Counter", "shout": "test.Loud"}, l.Bindings("test.Greeter"))

	// reversing the order reverses the winner
	l = NewLoader()
	require.NoError(t, l.Load(second, first))
	got, err = l.Resolve("test.Greeter", "shout")
	require.NoError(t, err)
	assert.Equal(t, "test.Counter", got)
}

func TestResolveMissing(t *testing.T) {
	l := NewLoader()
	require.NoError(t, l.Load())

	_, err := l.Resolve(CapabilityLoadBalancer, "leastActive")
	assert.ErrorIs(t, err, errs.ErrBindingNotFound)
	_, err = l.Resolve("nope.Nothing", "random")
	assert.ErrorIs(t, err, errs.ErrBindingNotFound)
}

func TestLoadInstantiatesFreshInstances(t *testing.T) {
	l := NewLoader()
	require.NoError(t, l.Load(resource("counter=test.Counter\n")))

	a, err := Load[greeter](l, "test.Greeter", "counter")
	require.NoError(t, err)
	b, err := Load[greeter](l, "test.Greeter", "counter")
	require.NoError(t, err)

	a.Greet()
	a.Greet()
	assert.NotSame(t, a.(*counter), b.(*counter))
	assert.Equal(t, 2, a.(*counter).n)
	assert.Equal(t, 0, b.(*counter).n)
}

func TestLoadErrors(t *testing.T) {
	l := NewLoader()
	require.NoError(t, l.Load(resource("ghost=test.Ghost\nnumber=test.NotAGreeter\n")))

	_, err := Load[greeter](l, "test.Greeter", "ghost")
	assert.ErrorIs(t, err, errs.ErrUnknownFactory)

	_, err = Load[greeter](l, "test.Greeter", "number")
	assert.Error(t, err)

	err = NewLoader().Load(resource("broken line\n"))
	assert.Error(t, err)
}

func TestRegisterFactoryTwicePanics(t *testing.T) {
	assert.Panics(t, func() {
		RegisterFactory("test.Loud", func() any { return loud{} })
	})
}
