package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
	"github.com/closemarketing/go-checkout-links/pkg/ports"
)

type HTTPHandler struct {
	links        ports.LinkService
	conversions  ports.ConversionService
	jwtSecret    []byte
	isProduction bool
}

func NewHTTPHandler(links ports.LinkService, conversions ports.ConversionService, jwtSecret []byte, isProduction bool) *HTTPHandler {
	return &HTTPHandler{
		links:        links,
		conversions:  conversions,
		jwtSecret:    jwtSecret,
		isProduction: isProduction,
	}
}

// CreateLinkRequest payload
type CreateLinkRequest struct {
	Name        string           `json:"name"`
	Selection   domain.Selection `json:"products"`
	ExpiryHours int              `json:"expiry_hours"`
}

// CreateLinkResponse is the issuance result consumed by the admin surface.
type CreateLinkResponse struct {
	ID    int64  `json:"id"`
	URL   string `json:"url"`
	Token string `json:"token"`
}

// Create Link
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	link, err := h.links.Create(r.Context(), req.Name, req.Selection, req.ExpiryHours)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateLinkResponse{ID: link.ID, URL: link.URL, Token: link.Token})
}

// List Links
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	opts := domain.ListOptions{
		Status:  domain.Status(q.Get("status")),
		OrderBy: q.Get("order_by"),
		Desc:    q.Get("order") != "asc",
		Limit:   limit,
		Offset:  offset,
	}

	links, count, err := h.links.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"data":  links,
		"total": count,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Get a single link
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	link, err := h.links.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(link)
}

// Toggle link status
func (h *HTTPHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	link, err := h.links.ToggleStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(link)
}

// Delete Link
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	if err := h.links.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats returns aggregate counters across all links.
func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.links.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// orderEvents lists the order-lifecycle events that may trigger conversion
// counting. One order commonly fires several of them.
var orderEvents = map[string]bool{
	"thankyou":         true,
	"payment_complete": true,
	"completed":        true,
	"processing":       true,
	"on-hold":          true,
	"pending":          true,
}

// OrderPlaced handles POST /orders/{orderID}/placed: the checkout posted the
// order, so pin the attribution onto it before payment.
func (h *HTTPHandler) OrderPlaced(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	if orderID == "" {
		http.Error(w, "Order ID missing", http.StatusBadRequest)
		return
	}

	sessionID := cookieValue(r, sessionCookie)
	cookieLinkID := attributedLinkID(r, h.jwtSecret)

	if _, err := h.conversions.Attribute(r.Context(), orderID, sessionID, cookieLinkID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OrderEvent handles POST /orders/{orderID}/events/{event} and counts the
// conversion at most once per order across all events.
func (h *HTTPHandler) OrderEvent(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	event := r.PathValue("event")
	if orderID == "" || !orderEvents[event] {
		http.Error(w, "Unknown order event", http.StatusBadRequest)
		return
	}

	sessionID := cookieValue(r, sessionCookie)
	cookieLinkID := attributedLinkID(r, h.jwtSecret)

	linkID, counted, err := h.conversions.Track(r.Context(), orderID, sessionID, cookieLinkID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if linkID != 0 {
		expireAttributionCookie(w, h.isProduction)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"link_id": linkID,
		"counted": counted,
	})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	var entErr *domain.EntitlementError
	if errors.As(err, &entErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"reason":     entErr.Error(),
			"capability": entErr.Capability,
			"limit":      entErr.Limit,
		})
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func cookieValue(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}
