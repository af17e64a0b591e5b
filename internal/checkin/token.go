package checkin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "gatherly/internal/errors"
)

const (
	DefaultIssuer   = "gatherly"
	DefaultAudience = "gatherly-checkin"
	DefaultTTL      = 30 * 24 * time.Hour

	tokenType = "checkin"
)

// Config defines how check-in tokens are signed and verified.
type Config struct {
	Secret   string        `env:"CHECKIN_TOKEN_SECRET"`
	Issuer   string        `env:"CHECKIN_TOKEN_ISSUER" envDefault:"gatherly"`
	Audience string        `env:"CHECKIN_TOKEN_AUDIENCE" envDefault:"gatherly-checkin"`
	TTL      time.Duration `env:"CHECKIN_TOKEN_TTL" envDefault:"720h"`
}

// Claims are the identifiers bound into a verified token.
type Claims struct {
	AttendeeID int64
	EventID    int64
	TicketID   int64
	TokenID    string
	ExpiresAt  time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	AttendeeID int64  `json:"attendee_id"`
	EventID    int64  `json:"event_id"`
	TicketID   int64  `json:"ticket_id"`
	Type       string `json:"typ"`
}

// Codec signs and verifies HMAC check-in tokens.
type Codec struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewCodec(cfg Config, now func() time.Time) (*Codec, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, fmt.Errorf("CHECKIN_TOKEN_SECRET is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{
		key:      []byte(secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      now,
	}, nil
}

// Sign issues a token for one attendance record.
func (c *Codec) Sign(attendeeID, eventID, ticketID int64) (string, error) {
	now := c.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			Subject:   strconv.FormatInt(attendeeID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		AttendeeID: attendeeID,
		EventID:    eventID,
		TicketID:   ticketID,
		Type:       tokenType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign check-in token: %w", err)
	}
	return signed, nil
}

// Verify returns the token's claims or ErrInvalidToken.
func (c *Codec) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.ErrInvalidToken
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, invalid(err)
	}
	if parsed.Type != tokenType {
		return Claims{}, invalid(errors.New("unexpected token type"))
	}
	if _, err := uuid.Parse(parsed.ID); err != nil {
		return Claims{}, invalid(errors.New("missing token id"))
	}
	if parsed.AttendeeID <= 0 || parsed.EventID <= 0 || parsed.TicketID <= 0 {
		return Claims{}, invalid(errors.New("missing identifiers"))
	}

	return Claims{
		AttendeeID: parsed.AttendeeID,
		EventID:    parsed.EventID,
		TicketID:   parsed.TicketID,
		TokenID:    parsed.ID,
		ExpiresAt:  parsed.ExpiresAt.Time,
	}, nil
}

func invalid(err error) error {
	return &apperrors.Error{Kind: apperrors.InvalidToken, Message: apperrors.ErrInvalidToken.Message, Err: err}
}
