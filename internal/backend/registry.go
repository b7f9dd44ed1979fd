package backend

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"remotefs/internal/core/types"
)

// ResolutionError reports a location that could not be mapped to a
// backend and root path.
type ResolutionError struct {
	Location string
	Reason   string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %s: %v", e.Location, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve %s: %s", e.Location, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Backend factory functions keyed by scheme
var factories = make(map[string]func(types.BackendConfig) (Backend, error))

// Configured backend instances keyed by scheme
var (
	registry      = make(map[string]Backend)
	registryMutex sync.RWMutex
)

// RegisterFactory registers a backend constructor for a scheme. Called
// from init() in each backend implementation.
func RegisterFactory(scheme string, factory func(types.BackendConfig) (Backend, error)) {
	factories[scheme] = factory
}

// Initialize constructs backends for every configured scheme. Call once
// at startup before resolving locations.
func Initialize(configs map[string]types.BackendConfig) error {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	for scheme, cfg := range configs {
		if cfg.Scheme == "" {
			cfg.Scheme = scheme
		}
		factory, ok := factories[cfg.Scheme]
		if !ok {
			return fmt.Errorf("unknown backend scheme: %s", cfg.Scheme)
		}
		b, err := factory(cfg)
		if err != nil {
			return fmt.Errorf("create backend %s: %w", scheme, err)
		}
		registry[scheme] = b
	}

	return nil
}

// Get returns the configured backend for a scheme, lazily constructing
// one with default settings when the scheme has a factory but no
// explicit configuration.
func Get(scheme string) (Backend, error) {
	registryMutex.RLock()
	b, ok := registry[scheme]
	registryMutex.RUnlock()
	if ok {
		return b, nil
	}

	factory, ok := factories[scheme]
	if !ok {
		return nil, fmt.Errorf("backend not found: %s", scheme)
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()
	if b, ok := registry[scheme]; ok {
		return b, nil
	}
	b, err := factory(types.BackendConfig{Scheme: scheme})
	if err != nil {
		return nil, err
	}
	registry[scheme] = b
	return b, nil
}

// ResetRegistry drops all configured backend instances. Factories stay
// registered.
func ResetRegistry() {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry = make(map[string]Backend)
}

// Resolve maps a location identifier to a backend handle and an absolute
// root path. "s3://bucket/prefix" resolves to the s3 backend with root
// "/bucket/prefix"; a bare path resolves to the local backend.
func Resolve(location string) (Backend, string, error) {
	if location == "" {
		return nil, "", &ResolutionError{Location: location, Reason: "empty location"}
	}

	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		// No scheme: treat as a local path
		b, err := Get("local")
		if err != nil {
			return nil, "", &ResolutionError{Location: location, Reason: "no local backend", Err: err}
		}
		root := location
		if !strings.HasPrefix(root, "/") {
			root = "/" + root
		}
		return b, root, nil
	}

	if scheme == "" || rest == "" {
		return nil, "", &ResolutionError{Location: location, Reason: "malformed location"}
	}

	if scheme == "file" {
		scheme = "local"
	}

	b, err := Get(scheme)
	if err != nil {
		return nil, "", &ResolutionError{Location: location, Reason: "unknown scheme " + scheme, Err: err}
	}

	return b, path.Clean("/" + rest), nil
}
