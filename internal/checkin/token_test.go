package checkin

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gatherly/internal/errors"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T, mutate func(*Config)) *Codec {
	t.Helper()
	cfg := Config{Secret: "test-secret", Issuer: DefaultIssuer, Audience: DefaultAudience, TTL: time.Hour}
	if mutate != nil {
		mutate(&cfg)
	}
	codec, err := NewCodec(cfg, func() time.Time { return testNow })
	require.NoError(t, err)
	return codec
}

func TestSignVerifyRoundTrip(t *testing.T) {
	codec := newTestCodec(t, nil)

	token, err := codec.Sign(11, 22, 33)
	require.NoError(t, err)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(11), claims.AttendeeID)
	assert.Equal(t, int64(22), claims.EventID)
	assert.Equal(t, int64(33), claims.TicketID)
	assert.NotEmpty(t, claims.TokenID)
	assert.Equal(t, testNow.Add(time.Hour), claims.ExpiresAt.UTC())
}

func TestTokensHaveUniqueIDs(t *testing.T) {
	codec := newTestCodec(t, nil)
	a, err := codec.Sign(1, 2, 3)
	require.NoError(t, err)
	b, err := codec.Sign(1, 2, 3)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejects(t *testing.T) {
	codec := newTestCodec(t, nil)
	good, err := codec.Sign(1, 2, 3)
	require.NoError(t, err)

	otherSecret := newTestCodec(t, func(c *Config) { c.Secret = "another-secret" })
	otherIssuer := newTestCodec(t, func(c *Config) { c.Issuer = "someone-else" })
	otherAudience := newTestCodec(t, func(c *Config) { c.Audience = "gatherly-invite" })

	signedElsewhere := func(c *Codec) string {
		tok, err := c.Sign(1, 2, 3)
		require.NoError(t, err)
		return tok
	}

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ID:        "c1c9b7a2-0d38-4b0c-9d1f-7c8b3c0a1e55",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
		AttendeeID: 1, EventID: 2, TicketID: 3,
		Type: "password_reset",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"tampered":       tampered,
		"wrong secret":   signedElsewhere(otherSecret),
		"wrong issuer":   signedElsewhere(otherIssuer),
		"wrong audience": signedElsewhere(otherAudience),
		"wrong type":     wrongType,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Verify(token)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
			assert.Equal(t, apperrors.InvalidToken, apperrors.KindOf(err))
		})
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	codec := newTestCodec(t, nil)
	token, err := codec.Sign(1, 2, 3)
	require.NoError(t, err)

	later, err := NewCodec(Config{Secret: "test-secret", TTL: time.Hour}, func() time.Time {
		return testNow.Add(2 * time.Hour)
	})
	require.NoError(t, err)

	_, err = later.Verify(token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestVerifyRejectsOtherAlgorithm(t *testing.T) {
	codec := newTestCodec(t, nil)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ID:        "c1c9b7a2-0d38-4b0c-9d1f-7c8b3c0a1e55",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
		AttendeeID: 1, EventID: 2, TicketID: 3, Type: tokenType,
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec(Config{}, nil)
	assert.Error(t, err)
}
