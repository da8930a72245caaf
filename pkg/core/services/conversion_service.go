package services

import (
	"context"
	"log"

	"github.com/closemarketing/go-checkout-links/pkg/ports"
)

// ConversionService correlates completed orders back to the link that
// produced the cart, counting each order at most once. The link id is
// recovered through a fallback chain: ledger row on the order, then the
// server-side session slot, then the signed cookie. First non-empty wins.
type ConversionService struct {
	repo     ports.LinkRepository
	sessions ports.SessionStore
}

func NewConversionService(repo ports.LinkRepository, sessions ports.SessionStore) *ConversionService {
	return &ConversionService{repo: repo, sessions: sessions}
}

// Attribute records which link an order came from, without counting a
// conversion. Called when the order is placed, so the ledger becomes the
// authoritative channel for every later lifecycle event on this order.
func (s *ConversionService) Attribute(ctx context.Context, orderID, sessionID string, cookieLinkID int64) (int64, error) {
	if orderID == "" {
		return 0, nil
	}
	linkID, err := s.resolveLinkID(ctx, orderID, sessionID, cookieLinkID)
	if err != nil || linkID == 0 {
		return 0, err
	}
	if err := s.repo.AttributeOrder(ctx, orderID, linkID); err != nil {
		return 0, err
	}
	return linkID, nil
}

// Track handles an order-lifecycle event. The same order fires several
// events (thank-you view, payment completion, status transitions); the
// ledger's counted flag makes the increment happen exactly once across all
// of them. Session cleanup is best effort and never rolls back the count.
func (s *ConversionService) Track(ctx context.Context, orderID, sessionID string, cookieLinkID int64) (int64, bool, error) {
	if orderID == "" {
		return 0, false, nil
	}

	linkID, err := s.resolveLinkID(ctx, orderID, sessionID, cookieLinkID)
	if err != nil {
		return 0, false, err
	}
	if linkID == 0 {
		return 0, false, nil
	}

	if err := s.repo.AttributeOrder(ctx, orderID, linkID); err != nil {
		return 0, false, err
	}

	claimed, err := s.repo.ClaimConversion(ctx, orderID)
	if err != nil {
		return linkID, false, err
	}
	if claimed {
		if err := s.repo.IncrementConversions(ctx, linkID); err != nil {
			// The claim is already taken; losing the increment here is a
			// storage fault worth surfacing in logs, not to the caller.
			log.Printf("conversion counter failed for link %d (order %s): %v", linkID, orderID, err)
		}
	}

	if sessionID != "" {
		s.sessions.Clear(sessionID)
	}
	return linkID, claimed, nil
}

func (s *ConversionService) resolveLinkID(ctx context.Context, orderID, sessionID string, cookieLinkID int64) (int64, error) {
	linkID, err := s.repo.OrderLink(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if linkID == 0 && sessionID != "" {
		linkID = s.sessions.LinkID(sessionID)
	}
	if linkID == 0 {
		linkID = cookieLinkID
	}
	return linkID, nil
}

var _ ports.ConversionService = (*ConversionService)(nil)
