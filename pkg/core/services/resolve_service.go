package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
	"github.com/closemarketing/go-checkout-links/pkg/core/token"
	"github.com/closemarketing/go-checkout-links/pkg/ports"
)

// ResolveService validates an inbound token, materializes its selection into
// the visitor's cart and reports the outcome.
type ResolveService struct {
	repo     ports.LinkRepository
	codec    *token.Codec
	cart     ports.CartService
	catalog  ports.Catalog
	expiry   ports.ExpiryPolicy
	sessions ports.SessionStore
	now      func() time.Time
}

func NewResolveService(repo ports.LinkRepository, codec *token.Codec, cart ports.CartService, catalog ports.Catalog, expiry ports.ExpiryPolicy, sessions ports.SessionStore) *ResolveService {
	return &ResolveService{
		repo:     repo,
		codec:    codec,
		cart:     cart,
		catalog:  catalog,
		expiry:   expiry,
		sessions: sessions,
		now:      time.Now,
	}
}

// Resolve runs the full resolution contract. Validation failures return
// ErrInvalidLink / ErrLinkDisabled / ErrLinkExpired; a selection where no
// item could be added returns *NoProductsError. The visit is counted before
// availability is evaluated, and a visit-counter failure never fails the
// visitor's request.
//
// Duplicate product ids in one selection are processed independently; the
// cart may end up with the same product added twice. Stock checks are
// read-then-act with no reservation, so a concurrent stock change between
// check and add can still make the add fail.
func (s *ResolveService) Resolve(ctx context.Context, rawToken, sessionID string) (*domain.Resolution, error) {
	link, err := s.repo.GetByToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, domain.ErrInvalidLink
	}

	if link.Status != domain.StatusActive {
		return nil, domain.ErrLinkDisabled
	}

	now := s.now()
	if s.expiry.IsExpired(now, link) {
		return nil, domain.ErrLinkExpired
	}

	if err := s.repo.IncrementVisits(ctx, link.ID); err != nil {
		log.Printf("visit counter failed for link %d: %v", link.ID, err)
	}

	s.sessions.SetLinkID(sessionID, link.ID)

	selection := link.Selection
	if token.KindOf(rawToken) == token.KindLegacy {
		// Legacy tokens embed the selection and are authoritative for
		// their own expiry, independent of the stored row.
		payload, err := s.codec.DecodeLegacy(rawToken, now)
		if err != nil {
			if errors.Is(err, token.ErrExpired) {
				return nil, domain.ErrLinkExpired
			}
			return nil, domain.ErrInvalidLink
		}
		selection = payload.Products
	}

	if err := s.cart.Clear(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("clearing cart: %w", err)
	}

	added := 0
	var skipped []domain.SkippedItem
	for _, item := range selection {
		if item.ProductID <= 0 {
			continue
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}

		product, err := s.catalog.Item(ctx, item.ProductID, item.VariationID)
		if err != nil {
			return nil, fmt.Errorf("looking up product %d: %w", item.ProductID, err)
		}
		if product == nil {
			continue
		}

		if !product.InStock {
			skipped = append(skipped, domain.SkippedItem{Name: product.Name, Reason: "out of stock"})
			continue
		}
		if product.ManagedStock && product.StockQuantity < qty {
			skipped = append(skipped, domain.SkippedItem{
				Name:   product.Name,
				Reason: fmt.Sprintf("only %d available", product.StockQuantity),
			})
			continue
		}

		ok, err := s.cart.Add(ctx, sessionID, domain.SelectionItem{
			ProductID:   item.ProductID,
			Quantity:    qty,
			VariationID: item.VariationID,
			Variation:   item.Variation,
		})
		if err != nil {
			return nil, fmt.Errorf("adding product %d to cart: %w", item.ProductID, err)
		}
		if ok {
			added++
		}
	}

	if added == 0 {
		return nil, &domain.NoProductsError{Skipped: skipped}
	}

	return &domain.Resolution{
		Link:        link,
		RedirectURL: s.cart.CheckoutURL(),
		Added:       added,
		Skipped:     skipped,
	}, nil
}

var _ ports.ResolveService = (*ResolveService)(nil)
