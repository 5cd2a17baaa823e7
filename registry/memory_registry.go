package registry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryStore stands in for the coordination service: several MemoryRegistry
// sessions can share one store, as several processes share one etcd cluster.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]memoryRecord // service -> address -> record
}

type memoryRecord struct {
	info  ServiceInfo
	owner uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]memoryRecord)}
}

func (s *MemoryStore) put(owner uint64, info ServiceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byAddr, ok := s.records[info.ServiceName]
	if !ok {
		byAddr = make(map[string]memoryRecord)
		s.records[info.ServiceName] = byAddr
	}
	byAddr[info.Address()] = memoryRecord{info: info, owner: owner}
}

func (s *MemoryStore) delete(info ServiceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[info.ServiceName], info.Address())
}

func (s *MemoryStore) list(serviceName string) []ServiceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]ServiceInfo, 0, len(s.records[serviceName]))
	for _, rec := range s.records[serviceName] {
		res = append(res, rec.info)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Address() < res[j].Address() })
	return res
}

// expire drops every record owned by the session, like a revoked lease.
func (s *MemoryStore) expire(owner uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byAddr := range s.records {
		for addr, rec := range byAddr {
			if rec.owner == owner {
				delete(byAddr, addr)
			}
		}
	}
}

var sessionIDs atomic.Uint64

var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is a Registry over a MemoryStore, for tests and single-process setups.
type MemoryRegistry struct {
	lifecycle
	store   *MemoryStore
	session uint64
}

// NewMemoryRegistry opens no session until Init; a nil store gets a private one.
func NewMemoryRegistry(store *MemoryStore) *MemoryRegistry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &MemoryRegistry{store: store}
}

func (r *MemoryRegistry) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateUninitialized {
		return r.stateErr("init")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.session = sessionIDs.Add(1)
	r.state = StateConnected
	return nil
}

func (r *MemoryRegistry) Register(ctx context.Context, info ServiceInfo) error {
	return r.require(StateConnected, "register", func() error {
		r.store.put(r.session, info)
		return nil
	})
}

func (r *MemoryRegistry) Unregister(ctx context.Context, info ServiceInfo) error {
	return r.require(StateConnected, "unregister", func() error {
		r.store.delete(info)
		return nil
	})
}

func (r *MemoryRegistry) ServiceDiscovery(ctx context.Context, serviceKey string) ([]ServiceInfo, error) {
	var res []ServiceInfo
	err := r.require(StateConnected, "discover", func() error {
		res = r.store.list(serviceKey)
		return nil
	})
	return res, err
}

func (r *MemoryRegistry) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateConnected {
		r.store.expire(r.session)
	}
	r.state = StateDestroyed
	return nil
}
