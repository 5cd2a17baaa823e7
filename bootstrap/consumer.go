package bootstrap

import (
	"mini-rpc-core/application"
	"mini-rpc-core/client"
)

// NewConsumer returns a client bound to rt.
func NewConsumer(rt *application.Runtime, opts ...client.Option) (*client.Client, error) {
	return client.New(rt, opts...)
}
