package chain

import (
	portsout "depositwatch/internal/application/ports/out"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

// Registry is the fixed set of chain adapters selected at startup. It is
// read-only after construction.
type Registry struct {
	adapters map[valueobjects.Chain]portsout.ChainAdapter
	order    []valueobjects.Chain
}

var _ portsout.ChainRegistry = (*Registry)(nil)

func NewRegistry(adapters ...portsout.ChainAdapter) (*Registry, *apperrors.AppError) {
	registry := &Registry{adapters: make(map[valueobjects.Chain]portsout.ChainAdapter, len(adapters))}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		chain := adapter.Chain()
		if _, exists := registry.adapters[chain]; exists {
			return nil, apperrors.NewInternal(
				"chain_adapter_duplicate",
				"chain adapter registered twice",
				map[string]any{"chain": chain.String()},
			)
		}
		registry.adapters[chain] = adapter
		registry.order = append(registry.order, chain)
	}
	return registry, nil
}

func (r *Registry) Adapter(chain valueobjects.Chain) (portsout.ChainAdapter, *apperrors.AppError) {
	adapter, exists := r.adapters[chain]
	if !exists {
		return nil, apperrors.NewValidation(
			"unsupported_chain",
			"chain not supported",
			map[string]any{"chain": chain.String()},
		)
	}
	return adapter, nil
}

// Chains lists registered chains in registration order.
func (r *Registry) Chains() []valueobjects.Chain {
	out := make([]valueobjects.Chain, len(r.order))
	copy(out, r.order)
	return out
}
