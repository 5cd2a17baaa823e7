// Package registry publishes provider instances and discovers live ones.
//
// Records are ephemeral: they belong to the session of the registry that wrote
// them and vanish when that session ends, so crashed providers drop out of
// discovery without explicit cleanup.
package registry

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"mini-rpc-core/errs"
)

// ServiceInfo describes one live provider instance.
type ServiceInfo struct {
	ServiceName string `json:"serviceName"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Weight      int    `json:"weight"` // only weighted selection reads it
}

// Address is host:port.
func (s ServiceInfo) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL is the address used by the HTTP transport.
func (s ServiceInfo) URL() string {
	return "http://" + s.Address()
}

// Key is the record path relative to the registry root.
func (s ServiceInfo) Key() string {
	return s.ServiceName + "/" + s.Address()
}

// Registry publishes and discovers provider instances on behalf of one session.
type Registry interface {
	// Init opens the session. Failing to connect within the configured bound is fatal.
	Init(ctx context.Context) error
	Register(ctx context.Context, info ServiceInfo) error
	Unregister(ctx context.Context, info ServiceInfo) error
	// ServiceDiscovery lists the live instances registered under serviceKey, in no particular order.
	ServiceDiscovery(ctx context.Context, serviceKey string) ([]ServiceInfo, error)
	// Destroy ends the session, removing every record it owns.
	Destroy() error
}

// State is a registry lifecycle stage.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StateDestroyed
)

// String names the state for errors.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// lifecycle guards the uninitialized -> connected -> destroyed transitions.
type lifecycle struct {
	mu    sync.RWMutex
	state State
}

func (l *lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *lifecycle) stateErr(op string) error {
	return fmt.Errorf("%w: %s while %s", errs.ErrRegistryState, op, l.state)
}

// require returns ErrRegistryState unless the current state is want.
// The read lock is held while fn runs.
func (l *lifecycle) require(want State, op string, fn func() error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != want {
		return l.stateErr(op)
	}
	return fn()
}
