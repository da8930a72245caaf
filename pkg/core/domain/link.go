package domain

import "time"

// Status of a checkout link. Expiry is not a status: an active link whose
// ExpiresAt has passed is still stored as active but refuses resolution.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// SelectionItem is one line of the product selection a link encodes.
// JSON names match the tokens issued by the original plugin so that
// previously shared legacy links keep decoding.
type SelectionItem struct {
	ProductID   int64             `json:"product_id"`
	Quantity    int64             `json:"quantity"`
	VariationID int64             `json:"variation_id,omitempty"`
	Variation   map[string]string `json:"variation,omitempty"`
}

// Selection is an ordered list of items. Duplicate product ids are kept as
// independent entries and each is resolved against the cart on its own.
type Selection []SelectionItem

// Link binds a token to a selection, its counters and lifecycle status.
type Link struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Token       string     `json:"token"`
	URL         string     `json:"url"`
	Selection   Selection  `json:"products"` // stored as JSON text
	ExpiryHours int        `json:"expiry_hours"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Visits      int64      `json:"visits"`
	Conversions int64      `json:"conversions"`
	Status      Status     `json:"status"`
}

// CatalogItem is the availability view of a product or variation as reported
// by the storefront catalog.
type CatalogItem struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	InStock       bool   `json:"in_stock"`
	ManagedStock  bool   `json:"managed_stock"`
	StockQuantity int64  `json:"stock_quantity"`
}

// SkippedItem records why a selection entry was not added to the cart.
type SkippedItem struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Resolution is the outcome of turning an inbound token into cart state.
// Skipped may be non-empty on a successful resolution (partial availability).
type Resolution struct {
	Link        *Link         `json:"link"`
	RedirectURL string        `json:"redirect_url"`
	Added       int           `json:"added"`
	Skipped     []SkippedItem `json:"skipped,omitempty"`
}

// Entitlement is the plan-tier limit set consulted by issuance and
// activation. It is read, never written, by this service.
type Entitlement struct {
	Elevated        bool `json:"elevated"`
	MaxActiveLinks  int  `json:"max_active_links"`
	MaxItemsPerLink int  `json:"max_items_per_link"`
}

// Stats aggregates counters across all links.
type Stats struct {
	TotalLinks       int64   `json:"total_links"`
	ActiveLinks      int64   `json:"active_links"`
	TotalVisits      int64   `json:"total_visits"`
	TotalConversions int64   `json:"total_conversions"`
	ConversionRate   float64 `json:"conversion_rate"`
}

// ListOptions filters and orders link listings.
type ListOptions struct {
	Status  Status // empty means all
	OrderBy string // whitelisted by the repository
	Desc    bool
	Limit   int
	Offset  int
}
