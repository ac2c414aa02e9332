package auth

import "context"

// ResolverStore is the persistence surface the resolver needs. Implemented
// by UserRepository.
type ResolverStore interface {
	FindBySocial(ctx context.Context, provider, providerID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	LinkSocial(ctx context.Context, userID, provider, providerID, email string) error
	CreateWithSocialLink(ctx context.Context, email, provider, providerID string) (*User, error)
}

// Resolver maps a social identity onto a canonical local user: an existing
// link wins, then an email match gets linked, then a new user is created.
//
// The email-match step trusts the provider's email claim as-is.
type Resolver struct {
	Store ResolverStore
}

func (r *Resolver) Resolve(ctx context.Context, provider, providerID, email string) (*User, error) {
	user, err := r.Store.FindBySocial(ctx, provider, providerID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user, err = r.Store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if err := r.Store.LinkSocial(ctx, user.ID, provider, providerID, email); err != nil {
			return nil, err
		}
		return user, nil
	}

	return r.Store.CreateWithSocialLink(ctx, email, provider, providerID)
}
