package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderRegistry holds the closed set of mail transports keyed by name.
// Provider configuration is read once at construction; the registry never
// mutates it at runtime.
type ProviderRegistry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("core: provider is nil")
	}
	name := strings.TrimSpace(provider.Name())
	if name == "" {
		return fmt.Errorf("core: provider name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("core: provider already registered: %s", name)
	}
	r.providers[name] = provider
	return nil
}

// SetDefault selects the fallback provider used when a caller supplies no
// explicit name. The default must already be registered.
func (r *ProviderRegistry) SetDefault(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("core: default provider name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	r.defaultName = name
	return nil
}

func (r *ProviderRegistry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// ResolveName maps an optional caller-supplied name to a concrete,
// registered provider name. An empty name falls back to the configured
// default; an unavailable default surfaces its own config error instead
// of silently picking another provider.
func (r *ProviderRegistry) ResolveName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.DefaultName()
	}
	if name == "" {
		return "", fmt.Errorf("%w: no provider selected and no default configured", ErrUnknownProvider)
	}
	if _, err := r.Resolve(name); err != nil {
		return "", err
	}
	if err := r.ValidateConfig(name); err != nil {
		return "", err
	}
	return name, nil
}

func (r *ProviderRegistry) Resolve(name string) (Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownProvider)
	}
	r.mu.RLock()
	provider, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return provider, nil
}

func (r *ProviderRegistry) IsAvailable(name string) bool {
	return r.ValidateConfig(name) == nil
}

func (r *ProviderRegistry) ValidateConfig(name string) error {
	provider, err := r.Resolve(name)
	if err != nil {
		return err
	}
	if err := provider.ValidateConfig(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMisconfiguredProvider, name, err)
	}
	return nil
}

// Descriptors reports per-provider availability in name order.
func (r *ProviderRegistry) Descriptors() []ProviderDescriptor {
	r.mu.RLock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	descriptors := make([]ProviderDescriptor, 0, len(names))
	for _, name := range names {
		descriptor := ProviderDescriptor{Name: name, Available: true}
		if err := r.ValidateConfig(name); err != nil {
			descriptor.Available = false
			descriptor.LastError = err.Error()
		}
		descriptors = append(descriptors, descriptor)
	}
	return descriptors
}

var _ Registry = (*ProviderRegistry)(nil)
