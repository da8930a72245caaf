package token

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
)

var testSecret = []byte("test-secret-key-for-signing")

func testSelection() domain.Selection {
	return domain.Selection{
		{ProductID: 42, Quantity: 2},
		{ProductID: 7, Quantity: 1, VariationID: 71, Variation: map[string]string{"size": "M"}},
	}
}

func TestLegacyRoundTrip(t *testing.T) {
	codec := NewCodec(testSecret)
	now := time.Now()

	payload := LegacyPayload{
		Products:  testSelection(),
		ExpiresAt: 0,
		Issuer:    "cldc",
		IssuedAt:  now.Unix(),
	}

	raw, err := codec.EncodeLegacy(payload)
	require.NoError(t, err)

	decoded, err := codec.DecodeLegacy(raw, now)
	require.NoError(t, err)
	assert.Equal(t, payload.Products, decoded.Products)
	assert.Equal(t, payload.Issuer, decoded.Issuer)
	assert.Equal(t, payload.IssuedAt, decoded.IssuedAt)
}

func TestLegacyForgedSignature(t *testing.T) {
	codec := NewCodec(testSecret)
	now := time.Now()

	raw, err := codec.EncodeLegacy(LegacyPayload{Products: testSelection(), Issuer: "cldc", IssuedAt: now.Unix()})
	require.NoError(t, err)

	// Flip one byte inside the signature half of the wrapped token.
	outer, err := base64.StdEncoding.DecodeString(raw)
	require.NoError(t, err)
	dot := strings.IndexByte(string(outer), '.')
	require.Greater(t, dot, 0)
	sig := []byte(string(outer))
	pos := dot + 1
	if sig[pos] == 'a' {
		sig[pos] = 'b'
	} else {
		sig[pos] = 'a'
	}
	corrupted := base64.StdEncoding.EncodeToString(sig)

	_, err = codec.DecodeLegacy(corrupted, now)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLegacyWrongSecret(t *testing.T) {
	now := time.Now()
	raw, err := NewCodec(testSecret).EncodeLegacy(LegacyPayload{Products: testSelection(), IssuedAt: now.Unix()})
	require.NoError(t, err)

	_, err = NewCodec([]byte("another-secret")).DecodeLegacy(raw, now)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLegacyExpiry(t *testing.T) {
	codec := NewCodec(testSecret)
	now := time.Now()

	expired, err := codec.EncodeLegacy(LegacyPayload{
		Products:  testSelection(),
		ExpiresAt: now.Add(-time.Hour).Unix(),
		IssuedAt:  now.Add(-2 * time.Hour).Unix(),
	})
	require.NoError(t, err)

	_, err = codec.DecodeLegacy(expired, now)
	assert.ErrorIs(t, err, ErrExpired)

	// exp = 0 means never expires.
	eternal, err := codec.EncodeLegacy(LegacyPayload{Products: testSelection(), ExpiresAt: 0, IssuedAt: now.Unix()})
	require.NoError(t, err)
	_, err = codec.DecodeLegacy(eternal, now.Add(24*365*time.Hour))
	assert.NoError(t, err)
}

func TestLegacyMalformed(t *testing.T) {
	codec := NewCodec(testSecret)
	now := time.Now()

	for _, raw := range []string{
		"",
		"not base64 !!!",
		base64.StdEncoding.EncodeToString([]byte("no-dot-separator")),
		base64.StdEncoding.EncodeToString([]byte("too.many.dots")),
	} {
		_, err := codec.DecodeLegacy(raw, now)
		assert.ErrorIs(t, err, ErrInvalid, "token %q", raw)
	}
}

func TestGenerateShort(t *testing.T) {
	never := func(ctx context.Context, token string) (bool, error) { return false, nil }

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GenerateShort(context.Background(), never)
		require.NoError(t, err)
		assert.Len(t, tok, ShortLength)
		for _, c := range tok {
			assert.Contains(t, alphabet, string(c))
		}
		assert.False(t, seen[tok], "duplicate token %s", tok)
		seen[tok] = true
	}
}

func TestGenerateShortRetriesOnCollision(t *testing.T) {
	calls := 0
	exists := func(ctx context.Context, token string) (bool, error) {
		calls++
		return calls <= 3, nil // first three candidates collide
	}

	tok, err := GenerateShort(context.Background(), exists)
	require.NoError(t, err)
	assert.Len(t, tok, ShortLength)
	assert.Equal(t, 4, calls)
}

func TestGenerateShortFallback(t *testing.T) {
	always := func(ctx context.Context, token string) (bool, error) { return true, nil }

	tok, err := GenerateShort(context.Background(), always)
	require.NoError(t, err)
	// The fallback is a hex-derived value, still 10 chars so it stays on
	// the short side of the format discriminator.
	assert.Len(t, tok, ShortLength)
	assert.Equal(t, KindShort, KindOf(tok))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindShort, KindOf("aB3dE5fG7h"))
	assert.Equal(t, KindShort, KindOf(strings.Repeat("x", 20)))
	assert.Equal(t, KindLegacy, KindOf(strings.Repeat("x", 21)))

	raw, err := NewCodec(testSecret).EncodeLegacy(LegacyPayload{Products: testSelection()})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, KindLegacy, KindOf(raw))
}
