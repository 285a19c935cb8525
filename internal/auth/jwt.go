package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token has no subject claim")
)

// DefaultTokenTTL is used by GenerateToken when no TTL is configured.
const DefaultTokenTTL = time.Hour

// Claims defines the structured data we read from a bearer token.
// The caller identity is the standard "sub" claim.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenManagerConfig holds the signing secret and optional claim checks.
type TokenManagerConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

type TokenManager struct {
	secretKey []byte
	issuer    string
	audience  string
	ttl       time.Duration
	parser    *jwt.Parser
}

func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &TokenManager{
		secretKey: []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		ttl:       ttl,
		parser:    jwt.NewParser(opts...),
	}
}

// GenerateToken creates a signed token for subject. Producers and tests
// use it; the relay itself only validates.
func (tm *TokenManager) GenerateToken(subject string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		},
	}
	if tm.audience != "" {
		claims.Audience = jwt.ClaimStrings{tm.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := tm.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}
