// Package errs holds the error taxonomy shared by the consumer and provider sides.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrConfigLoad      = errors.New("mini-rpc: failed to load configuration")
	ErrRegistrySession = errors.New("mini-rpc: registry session could not be established")
	ErrRegistryState   = errors.New("mini-rpc: registry is not connected")
	ErrServiceNotFound = errors.New("mini-rpc: service not found")
	ErrMethodNotFound  = errors.New("mini-rpc: method not found")
	ErrSerialization   = errors.New("mini-rpc: serialization failed")
	ErrRetryExhausted  = errors.New("mini-rpc: retry attempts exhausted")
	ErrNoCandidates    = errors.New("mini-rpc: no service instances available")
	ErrInvalidWeights  = errors.New("mini-rpc: total weight of instances must be positive")
	ErrBindingNotFound = errors.New("mini-rpc: no strategy bound to key")
	ErrUnknownFactory  = errors.New("mini-rpc: no factory registered for implementation")
	ErrInvalidService  = errors.New("mini-rpc: invalid service definition")
	ErrBadRequest      = errors.New("mini-rpc: malformed request")
	ErrRateLimited     = errors.New("mini-rpc: rate limit exceeded")
	ErrTimeout         = errors.New("mini-rpc: request timed out")
)

// Kinds of remote failures carried inside a response envelope.
const (
	KindServiceNotFound = "ServiceNotFound"
	KindMethodNotFound  = "MethodNotFound"
	KindBadRequest      = "BadRequest"
	KindInvocation      = "Invocation"
	KindPanic           = "Panic"
	KindRateLimited     = "RateLimited"
	KindTimeout         = "Timeout"
)

var kindSentinels = map[string]error{
	KindServiceNotFound: ErrServiceNotFound,
	KindMethodNotFound:  ErrMethodNotFound,
	KindBadRequest:      ErrBadRequest,
	KindRateLimited:     ErrRateLimited,
	KindTimeout:         ErrTimeout,
}

// RemoteInvocationError is raised on the consumer side when the provider
// answered with an embedded failure.
type RemoteInvocationError struct {
	Service string
	Method  string
	Kind    string
	Message string
}

func (e *RemoteInvocationError) Error() string {
	return fmt.Sprintf("mini-rpc: remote invocation %s.%s failed (%s): %s", e.Service, e.Method, e.Kind, e.Message)
}

// Unwrap lets callers match infrastructure kinds with errors.Is.
func (e *RemoteInvocationError) Unwrap() error {
	return kindSentinels[e.Kind]
}
