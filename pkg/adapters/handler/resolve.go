package handler

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
	"github.com/closemarketing/go-checkout-links/pkg/ports"
)

const (
	sessionCookie     = "cart_session"
	attributionCookie = "jptc_link"
	noticeCookie      = "jptc_notice"

	attributionTTL = 24 * time.Hour
	sessionTTL     = 48 * time.Hour
)

// ResolveHandler serves the public resolution route and issues the two
// attribution channels (session slot + signed cookie) on success.
type ResolveHandler struct {
	resolve      ports.ResolveService
	jwtSecret    []byte
	isProduction bool
}

func NewResolveHandler(resolve ports.ResolveService, jwtSecret []byte, isProduction bool) *ResolveHandler {
	return &ResolveHandler{resolve: resolve, jwtSecret: jwtSecret, isProduction: isProduction}
}

// Jump handles GET /{prefix}/{token}.
func (h *ResolveHandler) Jump(w http.ResponseWriter, r *http.Request) {
	rawToken := r.PathValue("token")
	if rawToken == "" {
		http.NotFound(w, r)
		return
	}

	sessionID := h.ensureSession(w, r)

	res, err := h.resolve.Resolve(r.Context(), rawToken, sessionID)
	if err != nil {
		h.renderFailure(w, err)
		return
	}

	h.setAttributionCookie(w, res.Link.ID)

	if len(res.Skipped) > 0 {
		h.setNoticeCookie(w, res.Skipped)
	}

	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

func (h *ResolveHandler) renderFailure(w http.ResponseWriter, err error) {
	var noProducts *domain.NoProductsError
	if errors.As(err, &noProducts) {
		// Soft failure: 200 with an error page listing every skipped item.
		var lines []string
		for _, s := range noProducts.Skipped {
			lines = append(lines, fmt.Sprintf("<li>%s: %s</li>",
				html.EscapeString(s.Name), html.EscapeString(s.Reason)))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, errorPage, "Products Not Available",
			"Sorry, the products in this link are not available:<ul>"+strings.Join(lines, "")+"</ul>")
		return
	}

	var msg string
	switch {
	case errors.Is(err, domain.ErrInvalidLink):
		msg = "Invalid checkout link."
	case errors.Is(err, domain.ErrLinkDisabled):
		msg = "This checkout link has been disabled."
	case errors.Is(err, domain.ErrLinkExpired):
		msg = "This checkout link has expired."
	default:
		http.Error(w, "Something went wrong. Please try again.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprintf(w, errorPage, "Error", html.EscapeString(msg))
}

const errorPage = `<!DOCTYPE html>
<html><head><title>%s</title></head>
<body><p>%s</p></body></html>
`

// ensureSession returns the visitor's cart session id, minting one if the
// cookie is missing.
func (h *ResolveHandler) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Expires:  time.Now().Add(sessionTTL),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// setAttributionCookie stores the link id as a signed token so the value
// cannot be tampered with to claim conversions for another link.
func (h *ResolveHandler) setAttributionCookie(w http.ResponseWriter, linkID int64) {
	expires := time.Now().Add(attributionTTL)
	claims := &jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(linkID, 10),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		// The session slot remains as the other attribution channel.
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     attributionCookie,
		Value:    signed,
		Expires:  expires,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *ResolveHandler) setNoticeCookie(w http.ResponseWriter, skipped []domain.SkippedItem) {
	var names []string
	for _, s := range skipped {
		names = append(names, s.Name)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     noticeCookie,
		Value:    "skipped:" + strings.Join(names, "|"),
		Expires:  time.Now().Add(5 * time.Minute),
		Path:     "/",
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// attributedLinkID extracts and verifies the link id from the attribution
// cookie. Returns 0 for missing, forged or expired cookies.
func attributedLinkID(r *http.Request, secret []byte) int64 {
	c, err := r.Cookie(attributionCookie)
	if err != nil || c.Value == "" {
		return 0
	}

	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(c.Value, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !tok.Valid {
		return 0
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func expireAttributionCookie(w http.ResponseWriter, isProduction bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     attributionCookie,
		Value:    "",
		Expires:  time.Now().Add(-1 * time.Hour),
		Path:     "/",
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}
