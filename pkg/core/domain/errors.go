package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Visitor-facing resolution failures. All three are terminal for the
// request and rendered as a 403 error page.
var (
	ErrInvalidLink  = errors.New("invalid checkout link")
	ErrLinkDisabled = errors.New("this checkout link has been disabled")
	ErrLinkExpired  = errors.New("this checkout link has expired")
)

// NoProductsError means every selection entry failed availability. It is a
// soft failure: the visitor gets a 200 page listing each skipped item.
type NoProductsError struct {
	Skipped []SkippedItem
}

func (e *NoProductsError) Error() string {
	names := make([]string, 0, len(e.Skipped))
	for _, s := range e.Skipped {
		names = append(names, s.Name)
	}
	return "the products in this link are not available: " + strings.Join(names, ", ")
}

// EntitlementError reports a plan-tier limit blocking link creation or
// activation. Capability identifies the upgrade path for the caller.
type EntitlementError struct {
	Capability string
	Limit      int
}

func (e *EntitlementError) Error() string {
	return fmt.Sprintf("plan limit reached (%s, limit %d)", e.Capability, e.Limit)
}
