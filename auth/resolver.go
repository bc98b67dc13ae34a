// Package auth turns inbound credentials into verified identities and
// issues the short-lived service assertions used for privileged metadata
// writes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/toccatech/coffre"
)

// UserSource resolves session tokens to identities. Satisfied by
// coffre.MetadataStore.
type UserSource interface {
	UserByToken(ctx context.Context, token string) (coffre.Identity, error)
}

// Resolver resolves the inbound session token once per request. Anonymous
// is a valid terminal state: an absent or unrecognized token yields a nil
// identity, not an error. Routes that demand authentication enforce that
// separately.
type Resolver struct {
	users  UserSource
	strict bool
	logger *slog.Logger
}

// ResolverConfig holds configuration options for Resolver.
type ResolverConfig struct {
	// Strict makes identity-service transport failures fail the request
	// with coffre.ErrUpstream instead of degrading to anonymous.
	Strict bool
	// Logger for resolution diagnostics (default: slog.Default()).
	Logger *slog.Logger
}

func NewResolver(users UserSource, cfg ResolverConfig) (*Resolver, error) {
	if users == nil {
		return nil, errors.New("new resolver: user source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		users:  users,
		strict: cfg.Strict,
		logger: cfg.Logger,
	}, nil
}

// Resolve maps a session token to an identity. Returns (nil, nil) for the
// anonymous outcomes: no token, or a token the identity service does not
// recognize. A transport failure is anonymous in soft mode and
// coffre.ErrUpstream in strict mode; strict mode keeps "service down"
// distinguishable from "invalid credential".
func (r *Resolver) Resolve(ctx context.Context, token string) (*coffre.Identity, error) {
	if token == "" {
		return nil, nil
	}

	identity, err := r.users.UserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, coffre.ErrNotFound) {
			r.logger.Debug("unrecognized session token")
			return nil, nil
		}

		if r.strict {
			return nil, fmt.Errorf("resolve identity: %w", err)
		}

		r.logger.Warn("identity service unreachable, treating caller as anonymous", "err", err)
		return nil, nil
	}

	identity.AuthToken = token
	return &identity, nil
}
