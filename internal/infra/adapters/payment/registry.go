package payment

import (
	"fmt"
	"sort"
	"strings"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/ports/adapter"
)

var _ adapter.ProviderRegistry = (*Registry)(nil)

// Registry resolves configured providers by name.
type Registry struct {
	providers map[string]adapter.PaymentProvider
	def       string
}

// NewRegistry builds a registry; defaultName must be one of providers.
func NewRegistry(defaultName string, providers ...adapter.PaymentProvider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no payment providers configured")
	}
	r := &Registry{providers: make(map[string]adapter.PaymentProvider, len(providers))}
	for _, p := range providers {
		name := strings.ToLower(p.Name())
		if _, dup := r.providers[name]; dup {
			return nil, fmt.Errorf("payment provider %q registered twice", name)
		}
		r.providers[name] = p
	}
	r.def = strings.ToLower(defaultName)
	if _, ok := r.providers[r.def]; !ok {
		return nil, fmt.Errorf("default payment provider %q is not enabled (have %v)", defaultName, r.Names())
	}
	return r, nil
}

func (r *Registry) Get(name string) (adapter.PaymentProvider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, name)
	}
	return p, nil
}

func (r *Registry) Default() adapter.PaymentProvider { return r.providers[r.def] }

// Names lists the registered providers in stable order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
