package ports

import (
	"context"
	"time"

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
)

// LinkRepository defines storage operations for checkout links and the
// conversions ledger. The token column carries a UNIQUE index; Create
// surfaces a violation as an error rather than retrying.
type LinkRepository interface {
	Create(ctx context.Context, link *domain.Link) error
	GetByToken(ctx context.Context, token string) (*domain.Link, error)
	GetByID(ctx context.Context, id int64) (*domain.Link, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	UpdateStatus(ctx context.Context, id int64, status domain.Status) error
	Delete(ctx context.Context, id int64) error // hard delete
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Link, error)
	Count(ctx context.Context, status domain.Status) (int64, error)
	Stats(ctx context.Context) (*domain.Stats, error)
	Dump(ctx context.Context) ([]domain.Link, error) // for export tooling

	// Counters. Both are blind single-statement increments.
	IncrementVisits(ctx context.Context, id int64) error
	IncrementConversions(ctx context.Context, id int64) error

	// Conversions ledger, keyed by order id. AttributeOrder is first-write-
	// wins; ClaimConversion flips the counted flag and reports whether this
	// call won the claim, so counting happens at most once per order even
	// under concurrent triggers.
	AttributeOrder(ctx context.Context, orderID string, linkID int64) error
	OrderLink(ctx context.Context, orderID string) (int64, error) // 0 = unattributed
	ClaimConversion(ctx context.Context, orderID string) (bool, error)
}

// SecretSource hands out the process-wide signing secret, generating and
// persisting it on first use. The secret never changes afterwards.
type SecretSource interface {
	SecretKey(ctx context.Context) ([]byte, error)
}

// CartService is the external cart collaborator. Clear is destructive and
// unconditional; Add reports whether the cart accepted the item.
type CartService interface {
	Clear(ctx context.Context, sessionID string) error
	Add(ctx context.Context, sessionID string, item domain.SelectionItem) (bool, error)
	CheckoutURL() string
}

// Catalog resolves concrete items and their availability. A nil item with a
// nil error means the product does not exist.
type Catalog interface {
	Item(ctx context.Context, productID, variationID int64) (*domain.CatalogItem, error)
}

// EntitlementPolicy reports the caller's plan-tier limits.
type EntitlementPolicy interface {
	Entitlement(ctx context.Context) domain.Entitlement
}

// ExpiryPolicy decides what a link's expiry means. The base tier never
// expires links; an elevated tier may honor the requested hours and apply
// its own notion of "expired" (e.g. grace periods).
type ExpiryPolicy interface {
	ExpiresAt(now time.Time, expiryHours int) *time.Time
	IsExpired(now time.Time, link *domain.Link) bool
}

// SessionStore is the server-side slot that remembers which link produced
// the visitor's cart. It is one of two redundant attribution channels; the
// signed cookie is the other.
type SessionStore interface {
	SetLinkID(sessionID string, linkID int64)
	LinkID(sessionID string) int64
	Clear(sessionID string)
}

// LinkService defines issuance and management operations consumed by the
// admin surface.
type LinkService interface {
	Create(ctx context.Context, name string, selection domain.Selection, expiryHours int) (*domain.Link, error)
	Get(ctx context.Context, id int64) (*domain.Link, error)
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Link, int64, error)
	ToggleStatus(ctx context.Context, id int64) (*domain.Link, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*domain.Stats, error)
}

// ResolveService turns an inbound token into cart state and a redirect.
type ResolveService interface {
	Resolve(ctx context.Context, rawToken, sessionID string) (*domain.Resolution, error)
}

// ConversionService correlates completed orders back to links.
type ConversionService interface {
	Attribute(ctx context.Context, orderID, sessionID string, cookieLinkID int64) (int64, error)
	Track(ctx context.Context, orderID, sessionID string, cookieLinkID int64) (linkID int64, counted bool, err error)
}
