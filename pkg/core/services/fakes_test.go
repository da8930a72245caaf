package services

import (
	"context"
	"sync"

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
)

// fakeRepo is an in-memory LinkRepository for service tests.
type fakeRepo struct {
	mu     sync.Mutex
	nextID int64
	links  map[int64]*domain.Link
	orders map[string]*ledgerRow

	failVisits bool
}

type ledgerRow struct {
	linkID  int64
	counted bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nextID: 1,
		links:  make(map[int64]*domain.Link),
		orders: make(map[string]*ledgerRow),
	}
}

func (r *fakeRepo) Create(ctx context.Context, link *domain.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link.ID = r.nextID
	r.nextID++
	cp := *link
	r.links[link.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByToken(ctx context.Context, token string) (*domain.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.Token == token {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id int64) (*domain.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeRepo) TokenExists(ctx context.Context, token string) (bool, error) {
	l, err := r.GetByToken(ctx, token)
	return l != nil, err
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[id]; ok {
		l.Status = status
	}
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, id)
	return nil
}

func (r *fakeRepo) List(ctx context.Context, opts domain.ListOptions) ([]domain.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Link
	for _, l := range r.links {
		if opts.Status != "" && l.Status != opts.Status {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (r *fakeRepo) Count(ctx context.Context, status domain.Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.links {
		if status == "" || l.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) Stats(ctx context.Context) (*domain.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.Stats{}
	for _, l := range r.links {
		stats.TotalLinks++
		if l.Status == domain.StatusActive {
			stats.ActiveLinks++
		}
		stats.TotalVisits += l.Visits
		stats.TotalConversions += l.Conversions
	}
	if stats.TotalVisits > 0 {
		stats.ConversionRate = float64(stats.TotalConversions) / float64(stats.TotalVisits)
	}
	return stats, nil
}

func (r *fakeRepo) Dump(ctx context.Context) ([]domain.Link, error) {
	return r.List(ctx, domain.ListOptions{})
}

func (r *fakeRepo) IncrementVisits(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failVisits {
		return errStorage
	}
	if l, ok := r.links[id]; ok {
		l.Visits++
	}
	return nil
}

func (r *fakeRepo) IncrementConversions(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[id]; ok {
		l.Conversions++
	}
	return nil
}

func (r *fakeRepo) AttributeOrder(ctx context.Context, orderID string, linkID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		r.orders[orderID] = &ledgerRow{linkID: linkID}
	}
	return nil
}

func (r *fakeRepo) OrderLink(ctx context.Context, orderID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.orders[orderID]; ok {
		return row.linkID, nil
	}
	return 0, nil
}

func (r *fakeRepo) ClaimConversion(ctx context.Context, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.orders[orderID]
	if !ok || row.counted {
		return false, nil
	}
	row.counted = true
	return true, nil
}

var errStorage = &storageError{}

type storageError struct{}

func (*storageError) Error() string { return "storage failure" }

// fakeCart records cart operations. Items added per session; addFails marks
// product ids the cart declines.
type fakeCart struct {
	mu       sync.Mutex
	cleared  map[string]int
	items    map[string][]domain.SelectionItem
	addFails map[int64]bool
	checkout string
}

func newFakeCart() *fakeCart {
	return &fakeCart{
		cleared:  make(map[string]int),
		items:    make(map[string][]domain.SelectionItem),
		addFails: make(map[int64]bool),
		checkout: "http://shop.example/checkout",
	}
}

func (c *fakeCart) Clear(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared[sessionID]++
	c.items[sessionID] = nil
	return nil
}

func (c *fakeCart) Add(ctx context.Context, sessionID string, item domain.SelectionItem) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addFails[item.ProductID] {
		return false, nil
	}
	c.items[sessionID] = append(c.items[sessionID], item)
	return true, nil
}

func (c *fakeCart) CheckoutURL() string { return c.checkout }

// fakeCatalog serves products from a fixed map keyed by the concrete id
// (variation id when present, product id otherwise).
type fakeCatalog struct {
	products map[int64]domain.CatalogItem
}

func (c *fakeCatalog) Item(ctx context.Context, productID, variationID int64) (*domain.CatalogItem, error) {
	id := productID
	if variationID != 0 {
		id = variationID
	}
	if p, ok := c.products[id]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

// fakeSessions is a plain map session slot.
type fakeSessions struct {
	mu sync.Mutex
	m  map[string]int64
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{m: make(map[string]int64)}
}

func (s *fakeSessions) SetLinkID(sessionID string, linkID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sessionID] = linkID
}

func (s *fakeSessions) LinkID(sessionID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[sessionID]
}

func (s *fakeSessions) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, sessionID)
}
