package services

import (
	"context"
	"time"

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
)

// TierPolicy is a static entitlement read from configuration. The base tier
// allows 5 active links with a single product each; the elevated tier lifts
// both limits.
type TierPolicy struct {
	elevated        bool
	maxActiveLinks  int
	maxItemsPerLink int
}

func NewTierPolicy(elevated bool, maxActiveLinks, maxItemsPerLink int) TierPolicy {
	return TierPolicy{elevated: elevated, maxActiveLinks: maxActiveLinks, maxItemsPerLink: maxItemsPerLink}
}

func (p TierPolicy) Entitlement(ctx context.Context) domain.Entitlement {
	return domain.Entitlement{
		Elevated:        p.elevated,
		MaxActiveLinks:  p.maxActiveLinks,
		MaxItemsPerLink: p.maxItemsPerLink,
	}
}

// BaseExpiry is the base-tier expiry policy: the expiry hint is accepted but
// links are stored as never expiring, and only a stored expires_at in the
// past counts as expired.
type BaseExpiry struct{}

func (BaseExpiry) ExpiresAt(now time.Time, expiryHours int) *time.Time {
	return nil
}

func (BaseExpiry) IsExpired(now time.Time, link *domain.Link) bool {
	return link.ExpiresAt != nil && link.ExpiresAt.Before(now)
}

// TimedExpiry honors the requested expiry hours. Used by the elevated tier.
type TimedExpiry struct{}

func (TimedExpiry) ExpiresAt(now time.Time, expiryHours int) *time.Time {
	if expiryHours <= 0 {
		return nil
	}
	t := now.Add(time.Duration(expiryHours) * time.Hour)
	return &t
}

func (TimedExpiry) IsExpired(now time.Time, link *domain.Link) bool {
	return link.ExpiresAt != nil && link.ExpiresAt.Before(now)
}
