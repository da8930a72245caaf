package token

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
)

// Two token formats coexist. Current links carry a 10-char random id and all
// state lives in the store; links issued by earlier releases carry the whole
// selection in an HMAC-signed payload and must keep resolving forever.

const (
	// ShortLength is the length of generated short tokens.
	ShortLength = 10

	// shortMaxLength is the discrimination threshold: anything at or below
	// it is treated as a short token, anything longer as a legacy signed
	// token. Signed tokens are double base64 wrapped and never come close.
	shortMaxLength = 20

	// maxGenerateTries bounds the collision-check loop. The UNIQUE index on
	// the token column is the real uniqueness guarantee; this loop only
	// keeps insert retries rare.
	maxGenerateTries = 10
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Kind discriminates the two wire formats.
type Kind int

const (
	KindShort Kind = iota
	KindLegacy
)

// KindOf classifies a raw inbound token by length.
func KindOf(raw string) Kind {
	if len(raw) <= shortMaxLength {
		return KindShort
	}
	return KindLegacy
}

var (
	// ErrInvalid covers malformed tokens and signature mismatches.
	ErrInvalid = errors.New("token: invalid or forged")
	// ErrExpired means the signature verified but the embedded expiry has
	// passed. Legacy tokens are authoritative for their own expiry.
	ErrExpired = errors.New("token: expired")
)

// LegacyPayload is the signed body of an old-format token. Field names match
// the original wire format.
type LegacyPayload struct {
	Products  domain.Selection `json:"products"`
	ExpiresAt int64            `json:"exp"` // unix seconds, 0 = never
	Issuer    string           `json:"iss"`
	IssuedAt  int64            `json:"iat"`
}

// Codec signs and verifies legacy tokens with a process-wide secret.
type Codec struct {
	secret []byte
}

func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

// EncodeLegacy produces an old-format signed token:
// base64(base64(json) + "." + hex(hmac-sha256(base64(json)))).
// Kept for migration tooling and tests; new links use GenerateShort.
func (c *Codec) EncodeLegacy(p LegacyPayload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(body)
	sig := c.sign(encoded)
	return base64.StdEncoding.EncodeToString([]byte(encoded + "." + sig)), nil
}

// DecodeLegacy verifies and unwraps an old-format token. The signature is
// compared in constant time. A verified token whose embedded expiry has
// passed yields ErrExpired; every other failure yields ErrInvalid.
func (c *Codec) DecodeLegacy(raw string, now time.Time) (*LegacyPayload, error) {
	outer, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, ErrInvalid
	}

	parts := strings.Split(string(outer), ".")
	if len(parts) != 2 {
		return nil, ErrInvalid
	}
	encoded, sig := parts[0], parts[1]

	expected := c.sign(encoded)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return nil, ErrInvalid
	}

	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalid
	}

	var p LegacyPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ErrInvalid
	}

	if p.ExpiresAt != 0 && p.ExpiresAt < now.Unix() {
		return nil, ErrExpired
	}
	return &p, nil
}

func (c *Codec) sign(encoded string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}

// ExistsFunc reports whether a candidate token is already stored.
type ExistsFunc func(ctx context.Context, token string) (bool, error)

// GenerateShort mints a 10-char alphanumeric token, retrying on collision.
// After maxGenerateTries it falls back to a time+random derived value, which
// trades away the collision pre-check; the store's unique constraint still
// rejects an actual duplicate on insert.
func GenerateShort(ctx context.Context, exists ExistsFunc) (string, error) {
	for i := 0; i < maxGenerateTries; i++ {
		candidate, err := randomToken(ShortLength)
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	seed, err := randomToken(ShortLength)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%d%s", time.Now().UnixNano(), seed)))
	return hex.EncodeToString(sum[:])[:ShortLength], nil
}

func randomToken(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		b[i] = alphabet[num.Int64()]
	}
	return string(b), nil
}
