package domain

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrProviderNotRegistered = errors.New("trigger provider not registered")
)

type RegisteredProvider struct {
	Provider    IntegrationType `json:"provider"`
	Description string          `json:"description"`
}

// TriggerLifecycleRegistry maps provider identifiers to their trigger
// lifecycle implementations. Several providers may point at the same
// lifecycle instance when they share one subscription mechanism.
type TriggerLifecycleRegistry interface {
	// Register binds a provider to a lifecycle. Last registration for a
	// given provider wins.
	Register(provider IntegrationType, lifecycle TriggerLifecycle, description string)
	Get(provider IntegrationType) (TriggerLifecycle, error)
	List() []RegisteredProvider
}

type triggerLifecycleRegistry struct {
	mu                     sync.RWMutex
	lifecyclesByProvider   map[IntegrationType]TriggerLifecycle
	descriptionsByProvider map[IntegrationType]string
}

func NewTriggerLifecycleRegistry() TriggerLifecycleRegistry {
	return &triggerLifecycleRegistry{
		lifecyclesByProvider:   make(map[IntegrationType]TriggerLifecycle),
		descriptionsByProvider: make(map[IntegrationType]string),
	}
}

func (r *triggerLifecycleRegistry) Register(provider IntegrationType, lifecycle TriggerLifecycle, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lifecyclesByProvider[provider] = lifecycle
	r.descriptionsByProvider[provider] = description
}

func (r *triggerLifecycleRegistry) Get(provider IntegrationType) (TriggerLifecycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lifecycle, ok := r.lifecyclesByProvider[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, provider)
	}

	return lifecycle, nil
}

func (r *triggerLifecycleRegistry) List() []RegisteredProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]RegisteredProvider, 0, len(r.lifecyclesByProvider))

	for provider := range r.lifecyclesByProvider {
		providers = append(providers, RegisteredProvider{
			Provider:    provider,
			Description: r.descriptionsByProvider[provider],
		})
	}

	sort.Slice(providers, func(i, j int) bool {
		return providers[i].Provider < providers[j].Provider
	})

	return providers
}
