package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
	"github.com/closemarketing/go-checkout-links/pkg/core/token"
	"github.com/closemarketing/go-checkout-links/pkg/ports"
)

// LinkService owns link issuance and management.
type LinkService struct {
	repo         ports.LinkRepository
	entitlements ports.EntitlementPolicy
	expiry       ports.ExpiryPolicy
	baseURL      string
	linkPrefix   string
	now          func() time.Time
}

func NewLinkService(repo ports.LinkRepository, entitlements ports.EntitlementPolicy, expiry ports.ExpiryPolicy, baseURL, linkPrefix string) *LinkService {
	return &LinkService{
		repo:         repo,
		entitlements: entitlements,
		expiry:       expiry,
		baseURL:      baseURL,
		linkPrefix:   linkPrefix,
		now:          time.Now,
	}
}

// Create issues a new link. The expiry hint is stored but only takes effect
// under an expiry policy that honors it. No row is inserted when a plan
// limit blocks the request.
func (s *LinkService) Create(ctx context.Context, name string, selection domain.Selection, expiryHours int) (*domain.Link, error) {
	if name == "" {
		return nil, errors.New("link name is required")
	}
	if len(selection) == 0 {
		return nil, errors.New("selection must contain at least one product")
	}
	for _, item := range selection {
		if item.ProductID <= 0 {
			return nil, fmt.Errorf("invalid product id %d", item.ProductID)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity %d for product %d", item.Quantity, item.ProductID)
		}
	}

	ent := s.entitlements.Entitlement(ctx)
	if !ent.Elevated && len(selection) > ent.MaxItemsPerLink {
		return nil, &domain.EntitlementError{Capability: "multiple_products", Limit: ent.MaxItemsPerLink}
	}
	if err := s.checkActiveLimit(ctx, ent); err != nil {
		return nil, err
	}

	tok, err := token.GenerateShort(ctx, s.repo.TokenExists)
	if err != nil {
		return nil, err
	}

	now := s.now()
	link := &domain.Link{
		Name:        name,
		Token:       tok,
		URL:         fmt.Sprintf("%s/%s/%s", s.baseURL, s.linkPrefix, tok),
		Selection:   selection,
		ExpiryHours: expiryHours,
		ExpiresAt:   s.expiry.ExpiresAt(now, expiryHours),
		CreatedAt:   now,
		Status:      domain.StatusActive,
	}

	if err := s.repo.Create(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *LinkService) checkActiveLimit(ctx context.Context, ent domain.Entitlement) error {
	if ent.Elevated {
		return nil
	}
	active, err := s.repo.Count(ctx, domain.StatusActive)
	if err != nil {
		return err
	}
	if active >= int64(ent.MaxActiveLinks) {
		return &domain.EntitlementError{Capability: "unlimited_links", Limit: ent.MaxActiveLinks}
	}
	return nil
}

func (s *LinkService) Get(ctx context.Context, id int64) (*domain.Link, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, errors.New("link not found")
	}
	return link, nil
}

func (s *LinkService) List(ctx context.Context, opts domain.ListOptions) ([]domain.Link, int64, error) {
	if opts.Limit < 1 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	links, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, opts.Status)
	if err != nil {
		return nil, 0, err
	}
	return links, count, nil
}

// ToggleStatus flips active <-> inactive. Re-activation re-runs the same
// active-link limit as creation.
func (s *LinkService) ToggleStatus(ctx context.Context, id int64) (*domain.Link, error) {
	link, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := domain.StatusInactive
	if link.Status == domain.StatusInactive {
		next = domain.StatusActive
		if err := s.checkActiveLimit(ctx, s.entitlements.Entitlement(ctx)); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return nil, err
	}
	link.Status = next
	return link, nil
}

func (s *LinkService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *LinkService) Stats(ctx context.Context) (*domain.Stats, error) {
	return s.repo.Stats(ctx)
}

var _ ports.LinkService = (*LinkService)(nil)
