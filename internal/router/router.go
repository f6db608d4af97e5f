// Package router maps an objective to the ordered set of models that serve
// it, skipping models that are currently unavailable.
package router

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"llmnexus/internal/llm"
)

var ErrRoutingExhausted = errors.New("routing exhausted")

// ExhaustedError names the objective that had no available model.
type ExhaustedError struct {
	Objective Objective
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("routing exhausted: no available model for objective %q", e.Objective.Label())
}

func (e *ExhaustedError) Unwrap() error { return ErrRoutingExhausted }

// Route is the priority-ordered candidate list for one objective. FanOut is
// how many available candidates a run is sent to.
type Route struct {
	Candidates []string
	FanOut     int
}

// Table maps every objective to its route.
type Table map[Objective]Route

// Catalog resolves model ids to descriptors.
type Catalog interface {
	Descriptor(id string) (llm.ModelDescriptor, bool)
}

// Availability reports per-model health. A nil Availability treats every
// model as available.
type Availability interface {
	Available(id string) bool
}

// Router selects models for an objective.
type Router struct {
	mu      sync.RWMutex
	table   Table
	catalog Catalog
	avail   Availability
}

func New(table Table, catalog Catalog, avail Availability) (*Router, error) {
	if catalog == nil {
		return nil, fmt.Errorf("router: catalog is required")
	}
	r := &Router{catalog: catalog, avail: avail}
	if err := r.Reload(table); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that every objective has a route, every candidate is in
// the catalog, and fan-out is at least one.
func Validate(table Table, catalog Catalog) error {
	var errs []error
	for _, obj := range Objectives() {
		route, ok := table[obj]
		if !ok {
			errs = append(errs, fmt.Errorf("objective %q: no route", obj))
			continue
		}
		if len(route.Candidates) == 0 {
			errs = append(errs, fmt.Errorf("objective %q: no candidates", obj))
		}
		if route.FanOut < 1 {
			errs = append(errs, fmt.Errorf("objective %q: fanout must be >= 1, got %d", obj, route.FanOut))
		}
		seen := map[string]bool{}
		for _, id := range route.Candidates {
			k := strings.ToLower(strings.TrimSpace(id))
			if seen[k] {
				errs = append(errs, fmt.Errorf("objective %q: candidate %q listed twice", obj, id))
			}
			seen[k] = true
			if _, ok := catalog.Descriptor(id); !ok {
				errs = append(errs, fmt.Errorf("objective %q: candidate %q is not registered", obj, id))
			}
		}
	}
	for obj := range table {
		if !isCanonical(obj) {
			errs = append(errs, fmt.Errorf("route for unknown objective %q", obj))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("router: invalid routing table: %w", errors.Join(errs...))
	}
	return nil
}

func isCanonical(obj Objective) bool {
	for _, o := range Objectives() {
		if o == obj {
			return true
		}
	}
	return false
}

// Reload validates and swaps in a new table. An invalid table leaves the
// current one in place.
func (r *Router) Reload(table Table) error {
	if err := Validate(table, r.catalog); err != nil {
		return err
	}
	cp := make(Table, len(table))
	for obj, route := range table {
		cp[obj] = Route{Candidates: append([]string(nil), route.Candidates...), FanOut: route.FanOut}
	}
	r.mu.Lock()
	r.table = cp
	r.mu.Unlock()
	return nil
}

// Route returns the configured route for obj.
func (r *Router) Route(obj Objective) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.table[obj]
	return route, ok
}

// Select returns up to FanOut available candidates for obj in priority
// order. Unavailable candidates are skipped and the next ranked candidate
// takes their place.
func (r *Router) Select(obj Objective) ([]llm.ModelDescriptor, error) {
	route, ok := r.Route(obj)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObjective, obj)
	}
	out := make([]llm.ModelDescriptor, 0, route.FanOut)
	for _, id := range route.Candidates {
		if len(out) == route.FanOut {
			break
		}
		if r.avail != nil && !r.avail.Available(id) {
			continue
		}
		desc, ok := r.catalog.Descriptor(id)
		if !ok {
			continue
		}
		out = append(out, desc)
	}
	if len(out) == 0 {
		return nil, &ExhaustedError{Objective: obj}
	}
	return out, nil
}
