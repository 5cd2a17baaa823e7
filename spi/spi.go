// Package spi resolves a (capability, policy key) pair to a strategy implementation.
//
// Bindings come from plain text resources at META-INF/rpc/<capability>, one
// key=implementation pair per line. Implementations are factories registered at
// init time by the packages that provide them.
package spi

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"mini-rpc-core/errs"
)

const (
	ResourceDir = "META-INF/rpc"

	CapabilityLoadBalancer = "loadbalance.LoadBalancer"
	CapabilityRetryer      = "retry.Retryer"
	CapabilityTolerant     = "tolerant.Tolerant"
)

//go:embed META-INF/rpc
var builtin embed.FS

// Defaults returns the bindings shipped with the module.
func Defaults() fs.FS {
	return builtin
}

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]func() any)
)

// RegisterFactory makes implID instantiable. Registering the same id twice panics.
func RegisterFactory(implID string, factory func() any) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("spi: RegisterFactory factory is nil for " + implID)
	}
	if _, dup := factories[implID]; dup {
		panic("spi: RegisterFactory called twice for " + implID)
	}
	factories[implID] = factory
}

func factory(implID string) (func() any, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[implID]
	return f, ok
}

// Loader holds the binding table: capability -> key -> implementation id.
type Loader struct {
	mu       sync.RWMutex
	bindings map[string]map[string]string
}

// NewLoader returns a loader with no bindings; call Load.
func NewLoader() *Loader {
	return &Loader{bindings: make(map[string]map[string]string)}
}

// Load merges every binding resource found in roots, in order; on a key collision the
// resource read last wins. With no roots the embedded defaults are read.
func (l *Loader) Load(roots ...fs.FS) error {
	if len(roots) == 0 {
		roots = []fs.FS{builtin}
	}
	for _, root := range roots {
		files, err := fs.Glob(root, ResourceDir+"/*")
		if err != nil {
			return fmt.Errorf("spi: list %s: %w", ResourceDir, err)
		}
		sort.Strings(files)
		for _, file := range files {
			data, err := fs.ReadFile(root, file)
			if err != nil {
				return fmt.Errorf("spi: read %s: %w", file, err)
			}
			entries, err := parse(data)
			if err != nil {
				return fmt.Errorf("spi: parse %s: %w", file, err)
			}
			l.merge(path.Base(file), entries)
		}
	}
	return nil
}

func (l *Loader) merge(capability string, entries map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	table, ok := l.bindings[capability]
	if !ok {
		table = make(map[string]string, len(entries))
		l.bindings[capability] = table
	}
	for k, v := range entries {
		table[k] = v
	}
}

// parse reads key=value lines; blank lines and # comments are skipped.
func parse(data []byte) (map[string]string, error) {
	entries := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		k, v, ok := strings.Cut(text, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("line %d: expected key=implementation, got %q", line, text)
		}
		// later lines in the same file also win
		entries[k] = v
	}
	return entries, sc.Err()
}

// Resolve returns the implementation id bound to key for capability.
func (l *Loader) Resolve(capability, key string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	implID, ok := l.bindings[capability][key]
	if !ok {
		return "", fmt.Errorf("%w: %s=%s", errs.ErrBindingNotFound, capability, key)
	}
	return implID, nil
}

// Bindings returns a copy of the table for capability.
func (l *Loader) Bindings(capability string) map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.bindings[capability]))
	for k, v := range l.bindings[capability] {
		out[k] = v
	}
	return out
}

// Load resolves and instantiates a strategy. Every call builds a new instance;
// stateful strategies must be cached by the caller.
func Load[T any](l *Loader, capability, key string) (T, error) {
	var zero T
	implID, err := l.Resolve(capability, key)
	if err != nil {
		return zero, err
	}
	f, ok := factory(implID)
	if !ok {
		return zero, fmt.Errorf("%w: %s", errs.ErrUnknownFactory, implID)
	}
	inst, ok := f().(T)
	if !ok {
		return zero, fmt.Errorf("spi: %s does not implement %s", implID, capability)
	}
	return inst, nil
}
