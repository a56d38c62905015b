package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService signs, verifies and refreshes stateless bearer tokens
type TokenService interface {
	Issue(claims SessionClaims, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (*JWTClaims, error)
	Refresh(token string) (string, time.Time, error)
	TTL() time.Duration
}

// TokenServiceImpl implements TokenService with HS256
type TokenServiceImpl struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	clock      func() time.Time
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, ttl time.Duration, issuer string, audience jwt.ClaimStrings, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		audience:   audience,
		logger:     logger,
		clock:      time.Now,
	}
}

// WithClock overrides the time source used for iat, exp and validation
func (ts *TokenServiceImpl) WithClock(clock func() time.Time) *TokenServiceImpl {
	if clock != nil {
		ts.clock = clock
	}
	return ts
}

// TTL is the default token lifetime
func (ts *TokenServiceImpl) TTL() time.Duration {
	return ts.ttl
}

// Issue signs claims with expiry now+ttl. A zero ttl uses the default.
func (ts *TokenServiceImpl) Issue(session SessionClaims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = ts.ttl
	}

	now := ts.clock()
	expires := now.Add(ttl)

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   session.Subject,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email:     session.Email,
		ProfileID: session.ProfileID,
		TenantID:  session.TenantID,
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, internalError(err, "failed to sign JWT")
	}

	return signed, claims.Expires(), nil
}

// Verify returns the claims of a well formed, correctly signed and
// unexpired token. Every failure is ErrInvalidToken.
func (ts *TokenServiceImpl) Verify(tokenString string) (*JWTClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.clock),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		ts.logger.Debug("token verify failed: %v", err)
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.RegisteredClaims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Refresh verifies the token and reissues its identity claims with a fresh expiry
func (ts *TokenServiceImpl) Refresh(tokenString string) (string, time.Time, error) {
	claims, err := ts.Verify(tokenString)
	if err != nil {
		return "", time.Time{}, err
	}
	return ts.Issue(claims.Session(), ts.ttl)
}
