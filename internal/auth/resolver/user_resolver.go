package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sessiongate/internal/auth"
	"sessiongate/internal/logger"
	"sessiongate/internal/user"
)

// Resolver maps an external identity to an internal user ID.
type Resolver interface {
	Resolve(ctx context.Context, identity *auth.Identity) (userID string, err error)
}

var ErrNilIdentity = errors.New("resolver: identity is nil")

// Users is the subset of the user repository needed to map identities.
type Users interface {
	FindIdentity(ctx context.Context, provider, providerUserID string) (string, error)
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	Create(ctx context.Context, u user.User) (*user.User, error)
	LinkIdentity(ctx context.Context, userID, provider, providerUserID string) error
}

// UserResolver maps identities onto the user store: a known identity wins,
// then a verified email links to an existing account, otherwise a new user
// is created.
type UserResolver struct {
	users Users
}

func NewUserResolver(users Users) *UserResolver {
	return &UserResolver{users: users}
}

func (r *UserResolver) Resolve(ctx context.Context, identity *auth.Identity) (string, error) {
	if identity == nil {
		return "", ErrNilIdentity
	}

	// 1. known identity
	userID, err := r.users.FindIdentity(ctx, identity.Provider, identity.ProviderUserID)
	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return "", fmt.Errorf("resolver: find identity: %w", err)
	}

	// 2. link to an existing account, only on a provider-verified email
	if identity.EmailVerified {
		existing, err := r.users.FindByEmail(ctx, identity.Email)
		switch {
		case err == nil:
			if err := r.link(ctx, existing.ID, identity); err != nil {
				return "", err
			}
			return existing.ID, nil
		case !errors.Is(err, user.ErrNotFound):
			return "", fmt.Errorf("resolver: find by email: %w", err)
		}
	}

	// 3. new user
	u := user.User{
		Email:         strings.TrimSpace(identity.Email),
		Name:          identity.Name,
		EmailVerified: identity.EmailVerified,
	}
	if identity.Picture != "" {
		pic := identity.Picture
		u.Image = &pic
	}

	created, err := r.users.Create(ctx, u)
	if err != nil {
		return "", fmt.Errorf("resolver: create user: %w", err)
	}

	if err := r.link(ctx, created.ID, identity); err != nil {
		return "", err
	}

	logger.Info("user created from identity", map[string]any{
		"provider": identity.Provider,
		"user_id":  created.ID,
	})

	return created.ID, nil
}

func (r *UserResolver) link(ctx context.Context, userID string, identity *auth.Identity) error {
	if err := r.users.LinkIdentity(ctx, userID, identity.Provider, identity.ProviderUserID); err != nil {
		return fmt.Errorf("resolver: link identity: %w", err)
	}
	return nil
}
