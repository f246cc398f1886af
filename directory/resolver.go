// Package directory resolves which counterparts a profile may converse
// with, based on the tenant/landlord relationship graph.
package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"rental-chat/contract"
	"rental-chat/domain"
	"rental-chat/errors"
)

type Resolver struct {
	log     *slog.Logger
	backend contract.Backend
}

func NewResolver(log *slog.Logger, backend contract.Backend) *Resolver {
	return &Resolver{log: log, backend: backend}
}

// Resolve returns the valid chat partners of a profile: the single
// connected landlord for a tenant, all connected tenants for a landlord.
// An empty result is a valid state (no partner yet), not an error; the
// relationship itself is established at signup time, outside this core.
func (r *Resolver) Resolve(ctx context.Context, profileID string, profileType domain.ProfileType) ([]domain.ProfileRef, error) {
	switch profileType {
	case domain.ProfileTenant, domain.ProfileLandlord:
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownProfileType, profileType)
	}

	partners, err := r.backend.ResolveRelationship(ctx, profileID, profileType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFetchFailed, err)
	}

	// A tenant has at most one landlord.
	if profileType == domain.ProfileTenant && len(partners) > 1 {
		r.log.Warn("Tenant linked to several landlords, keeping the first",
			"profile", profileID, "count", len(partners))
		partners = partners[:1]
	}
	return partners, nil
}

// DefaultPartner selects the conversation counterpart: the explicitly
// preselected id when present (deep link), otherwise the first partner in
// the stable order the relationship query returned. The second return
// value is false when no partner is available.
func DefaultPartner(partners []domain.ProfileRef, preselectedID string) (domain.ProfileRef, bool) {
	if len(partners) == 0 {
		return domain.ProfileRef{}, false
	}
	if preselectedID != "" {
		if p, ok := lo.Find(partners, func(p domain.ProfileRef) bool {
			return p.ID == preselectedID
		}); ok {
			return p, true
		}
	}
	return partners[0], true
}
