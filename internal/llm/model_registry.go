package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"llmnexus/internal/llmclient"
)

var ErrModelNotRegistered = errors.New("llm model is not registered")

type registeredModel struct {
	desc    ModelDescriptor
	factory ClientFactory
	client  llmclient.BackendClient
}

// InMemoryModelRegistry stores model registrations and lazily builds one
// middleware-wrapped client per model.
type InMemoryModelRegistry struct {
	mu     sync.RWMutex
	models map[string]*registeredModel
	order  []string
	chain  func(ModelDescriptor) []Middleware
}

// NewInMemoryModelRegistry creates an empty registry. chain, when non-nil,
// returns the middleware applied to each model's client on first use.
func NewInMemoryModelRegistry(chain func(ModelDescriptor) []Middleware) *InMemoryModelRegistry {
	return &InMemoryModelRegistry{
		models: map[string]*registeredModel{},
		chain:  chain,
	}
}

func keyFor(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// RegisterModel adds or replaces a model. Replacing a model closes the
// client built for its previous registration.
func (r *InMemoryModelRegistry) RegisterModel(reg ModelRegistration) error {
	if reg.Factory == nil {
		return fmt.Errorf("register model: factory is nil")
	}
	desc := reg.Descriptor
	desc.ID = strings.TrimSpace(desc.ID)
	desc.Provider = strings.ToLower(strings.TrimSpace(desc.Provider))
	desc.Model = strings.TrimSpace(desc.Model)
	if desc.ID == "" {
		return fmt.Errorf("register model: id is required")
	}
	if desc.Provider == "" || desc.Model == "" {
		return fmt.Errorf("register model %q: provider and model are required", desc.ID)
	}
	if desc.CostPerToken < 0 {
		return fmt.Errorf("register model %q: cost_per_token must not be negative", desc.ID)
	}

	k := keyFor(desc.ID)
	r.mu.Lock()
	var stale llmclient.BackendClient
	if prev, ok := r.models[k]; ok {
		stale = prev.client
	} else {
		r.order = append(r.order, k)
	}
	r.models[k] = &registeredModel{desc: desc, factory: reg.Factory}
	r.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}
	return nil
}

// Descriptor returns the descriptor registered under id.
func (r *InMemoryModelRegistry) Descriptor(id string) (ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[keyFor(id)]
	if !ok {
		return ModelDescriptor{}, false
	}
	return m.desc, true
}

// Descriptors lists registered models in registration order.
func (r *InMemoryModelRegistry) Descriptors() []ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelDescriptor, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.models[k].desc)
	}
	return out
}

// IDs returns the registered model ids, sorted.
func (r *InMemoryModelRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m.desc.ID)
	}
	sort.Strings(out)
	return out
}

// Client returns the wrapped client for id, building it on first use.
func (r *InMemoryModelRegistry) Client(ctx context.Context, id string) (llmclient.BackendClient, error) {
	k := keyFor(id)
	r.mu.RLock()
	m, ok := r.models[k]
	var cli llmclient.BackendClient
	if ok {
		cli = m.client
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotRegistered, id)
	}
	if cli != nil {
		return cli, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok = r.models[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotRegistered, id)
	}
	if m.client != nil {
		return m.client, nil
	}
	built, err := m.factory(ctx, m.desc)
	if err != nil {
		return nil, fmt.Errorf("build client %s: %w", m.desc.ID, err)
	}
	if r.chain != nil {
		built = Wrap(built, r.chain(m.desc)...)
	}
	m.client = built
	return built, nil
}

// Close closes every client the registry has built.
func (r *InMemoryModelRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, m := range r.models {
		if m.client == nil {
			continue
		}
		if err := m.client.Close(); err != nil {
			errs = append(errs, err)
		}
		m.client = nil
	}
	return errors.Join(errs...)
}
