package auth

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const RoleAdmin = "admin"

const APIKeyHeader = "X-Api-Key"

type ctxKey int

const ctxKeyClaims ctxKey = iota

// Operator configures how admin callers are authenticated. Either a bearer
// token (HS256 secret, or RS256 through JWKS) or an API key whose bcrypt
// hash is configured.
type Operator struct {
	JWTSecret  string
	JWKS       *JWKSClient
	APIKeyHash string
}

func (o Operator) Enabled() bool {
	return o.JWTSecret != "" || o.JWKS != nil || o.APIKeyHash != ""
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*Claims)
	return c, ok
}

// RequireRole rejects callers that do not present credentials for one of roles.
// API key callers are treated as admin.
func (o Operator) RequireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !o.Enabled() {
			http.Error(w, "admin api not configured", http.StatusServiceUnavailable)
			return
		}

		claims, err := o.authenticate(r)
		if err != nil {
			http.Error(w, "missing or invalid credentials", http.StatusUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, claims)))
	})
}

func (o Operator) authenticate(r *http.Request) (*Claims, error) {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		if o.APIKeyHash == "" {
			return nil, ErrInvalidToken
		}
		if err := bcrypt.CompareHashAndPassword([]byte(o.APIKeyHash), []byte(key)); err != nil {
			return nil, ErrInvalidToken
		}
		return &Claims{Sub: "api-key", Role: RoleAdmin}, nil
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return nil, ErrInvalidToken
	}

	if o.JWKS != nil {
		header, err := ParseHeader(token)
		if err != nil {
			return nil, err
		}
		if header.Alg == "RS256" && header.Kid != "" {
			pub, err := o.JWKS.Get(r.Context(), header.Kid)
			if err != nil {
				return nil, err
			}
			return VerifyRS256(token, pub)
		}
	}
	return ParseAndVerifyHS256(token, o.JWTSecret)
}

// HashAPIKey is used by operators to produce the APIKeyHash value.
func HashAPIKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
