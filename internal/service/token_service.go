package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/sma-adp-auth/internal/models"
)

const tokenIDBytes = 32

// clockSkewLeeway is tolerated on exp, nbf and iat between nodes.
const clockSkewLeeway = 30 * time.Second

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// TokenConfig defines signing parameters shared by access and refresh tokens.
type TokenConfig struct {
	Secret     string
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService encodes and verifies signed access and refresh tokens.
type TokenService struct {
	config TokenConfig
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenService constructs the token codec.
func NewTokenService(config TokenConfig) *TokenService {
	return newTokenService(config, func() time.Time { return time.Now().UTC() })
}

func newTokenService(config TokenConfig, now func() time.Time) *TokenService {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
		jwt.WithLeeway(clockSkewLeeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if len(config.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(config.Audience[0]))
	}

	return &TokenService{
		config: config,
		secret: []byte(config.Secret),
		now:    now,
		parser: jwt.NewParser(opts...),
	}
}

// AccessTTL is the fixed lifetime of access tokens.
func (s *TokenService) AccessTTL() time.Duration {
	return s.config.AccessTTL
}

// RefreshTTL is the fixed lifetime of refresh tokens.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.config.RefreshTTL
}

// IssueAccessToken signs a short-lived access token for the user.
func (s *TokenService) IssueAccessToken(user *models.User) (string, time.Time, error) {
	return s.sign(user.ID, models.TokenKindAccess, "", s.config.AccessTTL)
}

// IssueRefreshToken signs a refresh token carrying tokenID as its jti.
func (s *TokenService) IssueRefreshToken(user *models.User, tokenID string) (string, time.Time, error) {
	if tokenID == "" {
		return "", time.Time{}, errors.New("refresh token requires a token identifier")
	}
	return s.sign(user.ID, models.TokenKindRefresh, tokenID, s.config.RefreshTTL)
}

// VerifyAccessToken checks signature, expiry and kind of an access token.
func (s *TokenService) VerifyAccessToken(tokenString string) (*models.JWTClaims, error) {
	return s.verify(tokenString, models.TokenKindAccess)
}

// VerifyRefreshToken checks a refresh token and requires a token identifier.
func (s *TokenService) VerifyRefreshToken(tokenString string) (*models.JWTClaims, error) {
	claims, err := s.verify(tokenString, models.TokenKindRefresh)
	if err != nil {
		return nil, err
	}
	if claims.TokenID() == "" {
		return nil, fmt.Errorf("%w: missing token identifier", ErrInvalidToken)
	}
	return claims, nil
}

// NewTokenID returns 256 bits of randomness in URL-safe base64.
func NewTokenID() (string, error) {
	buf := make([]byte, tokenIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *TokenService) sign(subject string, kind models.TokenKind, tokenID string, ttl time.Duration) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.JWTClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    s.config.Issuer,
			Subject:   subject,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *TokenService) verify(tokenString string, kind models.TokenKind) (*models.JWTClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := &models.JWTClaims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: unexpected kind %q", ErrInvalidToken, claims.Kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
