// Package tolerant decides what a caller sees once retries are exhausted.
package tolerant

import (
	"sort"

	"go.uber.org/zap"

	"mini-rpc-core/internal/logging"
	"mini-rpc-core/message"
	"mini-rpc-core/spi"
)

// Tolerant is the terminal fallback applied once the retry policy gives up.
type Tolerant interface {
	// Tolerant receives every address tried across attempts and the terminal error.
	Tolerant(attempted []string, err error) (*message.RpcResponse, error)
}

func init() {
	spi.RegisterFactory("tolerant.DefaultTolerant", func() any { return NewDefaultTolerant() })
	spi.RegisterFactory("tolerant.FailFast", func() any { return FailFast{} })
}

// DefaultTolerant logs and swallows the failure: the caller receives a nil
// response and a nil error, and sees a zero result instead of an error.
type DefaultTolerant struct {
	logger *zap.Logger
}

// NewDefaultTolerant logs through the "tolerant" logger.
func NewDefaultTolerant() *DefaultTolerant {
	return &DefaultTolerant{logger: logging.Named("tolerant")}
}

func (t *DefaultTolerant) Tolerant(attempted []string, err error) (*message.RpcResponse, error) {
	addrs := append([]string(nil), attempted...)
	sort.Strings(addrs)
	t.logger.Error("call failed after retries, returning empty result",
		zap.Strings("attempted", addrs),
		zap.Error(err))
	return nil, nil
}

// FailFast hands the terminal error back unchanged.
type FailFast struct{}

func (FailFast) Tolerant(_ []string, err error) (*message.RpcResponse, error) {
	return nil, err
}
