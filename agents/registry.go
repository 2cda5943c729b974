// Package agents holds the agent registry, the generation dispatcher and the
// specialist content operations built on top of it.
package agents

import (
	"fmt"

	"github.com/flowmatik/backend/core"
)

// Registry is the immutable set of agents loaded at startup. Lookups are
// read-only after construction, so no locking is needed.
type Registry struct {
	byID  map[string]core.Agent
	order []string
}

// NewRegistry validates the catalog and builds the registry. Every agent
// needs a unique id, a model, at least one language and a non-negative
// pricing rate.
func NewRegistry(catalog []core.Agent) (*Registry, error) {
	if len(catalog) == 0 {
		return nil, fmt.Errorf("%w: agent catalog is empty", core.ErrInvalidArgument)
	}

	r := &Registry{byID: make(map[string]core.Agent, len(catalog))}
	for _, a := range catalog {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: agent with empty id", core.ErrInvalidArgument)
		}
		if _, dup := r.byID[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate agent id %q", core.ErrInvalidArgument, a.ID)
		}
		if a.Model == "" {
			return nil, fmt.Errorf("%w: agent %q has no model", core.ErrInvalidArgument, a.ID)
		}
		if len(a.Capabilities.Languages) == 0 {
			return nil, fmt.Errorf("%w: agent %q declares no languages", core.ErrInvalidArgument, a.ID)
		}
		if a.Pricing.Rate < 0 {
			return nil, fmt.Errorf("%w: agent %q has negative pricing rate", core.ErrInvalidArgument, a.ID)
		}
		r.byID[a.ID] = a
		r.order = append(r.order, a.ID)
	}
	return r, nil
}

// List returns all agents in catalog order.
func (r *Registry) List() []core.Agent {
	out := make([]core.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Get returns the agent for id, or core.ErrNotFound.
func (r *Registry) Get(id string) (core.Agent, error) {
	a, ok := r.byID[id]
	if !ok {
		return core.Agent{}, fmt.Errorf("%w: agent %q", core.ErrNotFound, id)
	}
	return a, nil
}

// Has reports whether id is a registered agent.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Len returns the number of registered agents.
func (r *Registry) Len() int { return len(r.order) }
