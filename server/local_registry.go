package server

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// LocalRegistry maps a capability name to its table. Safe for concurrent use by
// every connection handler.
type LocalRegistry struct {
	services *xsync.MapOf[string, *Service]
}

// NewLocalRegistry returns an empty registry.
func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{services: xsync.NewMapOf[string, *Service]()}
}

// Register replaces any service already registered under the same name.
func (r *LocalRegistry) Register(svc *Service) {
	r.services.Store(svc.Name(), svc)
}

// Get reports false for an unknown name.
func (r *LocalRegistry) Get(name string) (*Service, bool) {
	return r.services.Load(name)
}

// Remove drops the service registered under name.
func (r *LocalRegistry) Remove(name string) {
	r.services.Delete(name)
}

// Names lists the registered services, sorted.
func (r *LocalRegistry) Names() []string {
	names := make([]string, 0, r.services.Size())
	r.services.Range(func(name string, _ *Service) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
