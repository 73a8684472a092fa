package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"sessiongate/internal/auth"
)

// OAuthProvider is one social sign-in issuer. It reports who the user is
// and nothing else: user records, links and sessions belong to the caller.
type OAuthProvider interface {
	Name() string

	// AuthCodeURL builds the redirect for a flow whose state and S256
	// challenge the caller already generated.
	AuthCodeURL(state string, codeChallenge string) string

	ExchangeCode(ctx context.Context, code string, codeVerifier string) (*auth.Identity, error)
}

var ErrUnknownProvider = errors.New("unknown oauth provider")

// Registry holds all configured OAuth providers and allows
// lookup by provider name. It performs no auth logic itself.
type Registry struct {
	providers map[string]OAuthProvider
}

// NewRegistry registers the given OAuth providers by name.
// A later provider with the same name replaces an earlier one.
func NewRegistry(list ...OAuthProvider) *Registry {
	m := make(map[string]OAuthProvider)
	for _, p := range list {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the OAuth provider by name or an error if not registered.
func (r *Registry) Get(name string) (OAuthProvider, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
