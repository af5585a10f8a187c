package session

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const defaultKeyCacheTTL = 15 * time.Minute

// Claims are the token fields the session relies on.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// TokenInspector reads the tokens issued by the tasks API. With a JWKS or a shared secret
// it verifies signatures. Without either it only decodes the claims, leaving verification
// to the API that issued the token.
type TokenInspector struct {
	JWKS     *keyfunc.JWKS
	Secret   []byte
	Audience string
	Issuer   string

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
	now         func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewTokenInspector creates an inspector. jwks and secret are both optional.
func NewTokenInspector(jwks *keyfunc.JWKS, secret []byte, audience, issuer string) *TokenInspector {
	ti := &TokenInspector{
		JWKS:        jwks,
		Secret:      secret,
		Audience:    audience,
		Issuer:      issuer,
		keyCacheTTL: defaultKeyCacheTTL,
		now:         time.Now,
	}
	switch {
	case jwks != nil:
		ti.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation())
	case len(secret) > 0:
		ti.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithoutClaimsValidation())
	default:
		ti.parser = jwt.NewParser(jwt.WithoutClaimsValidation())
	}
	return ti
}

// Verifies reports whether the inspector checks signatures.
func (ti *TokenInspector) Verifies() bool {
	return ti.JWKS != nil || len(ti.Secret) > 0
}

// Inspect decodes token and checks its time-based claims.
func (ti *TokenInspector) Inspect(token string) (Claims, error) {
	if token == "" {
		return Claims{}, errors.New("empty token")
	}

	claims := jwt.MapClaims{}
	var err error
	switch {
	case ti.JWKS != nil:
		_, err = ti.parser.ParseWithClaims(token, claims, ti.keyForToken)
	case len(ti.Secret) > 0:
		_, err = ti.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return ti.Secret, nil
		})
	default:
		_, _, err = ti.parser.ParseUnverified(token, claims)
	}
	if err != nil {
		return Claims{}, err
	}

	now := ti.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Claims{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return Claims{}, errors.New("token not valid yet")
	}
	if ti.Audience != "" && !claims.VerifyAudience(ti.Audience, false) {
		return Claims{}, errors.New("invalid audience")
	}
	if ti.Issuer != "" && !claims.VerifyIssuer(ti.Issuer, false) {
		return Claims{}, errors.New("invalid issuer")
	}

	out := Claims{}
	switch sub := claims["sub"].(type) {
	case string:
		out.Subject = sub
	case float64:
		out.Subject = strconv.FormatInt(int64(sub), 10)
	}
	if out.Subject == "" {
		return Claims{}, errors.New("missing sub")
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return out, nil
}

func (ti *TokenInspector) keyForToken(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid != "" && ti.keyCacheTTL > 0 {
		if cached, ok := ti.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if ti.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			ti.keyCache.Delete(kid)
		}
	}

	key, err := ti.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && ti.keyCacheTTL > 0 {
		ti.keyCache.Store(kid, cachedKey{key: key, expiresAt: ti.now().Add(ti.keyCacheTTL)})
	}
	return key, nil
}
