package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{
		Sub:  "operator-1",
		Role: RoleAdmin,
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(time.Hour).Unix(),
	}

	token, err := SignHS256(claims, "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, "test-secret")
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
	if _, err := ParseAndVerifyHS256(token, ""); err == nil {
		t.Fatal("expected verification error with empty secret")
	}
}

func TestHS256Expired(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "x", Role: RoleAdmin, Exp: time.Now().Add(-time.Minute).Unix()}, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestRS256ThroughJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "kid-1",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	token, err := signRS256(Claims{Sub: "operator-2", Role: RoleAdmin, Exp: time.Now().Add(time.Hour).Unix()}, key, "kid-1")
	if err != nil {
		t.Fatalf("rs256 sign failed: %v", err)
	}

	op := Operator{JWKS: NewJWKSClient(srv.URL, time.Minute)}
	var seen *Claims
	h := op.RequireRole(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
	}), RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/settings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rw.Code, rw.Body.String())
	}
	if seen == nil || seen.Sub != "operator-2" {
		t.Fatalf("claims not propagated: %+v", seen)
	}
}

func TestRequireRoleAPIKeyAndForbidden(t *testing.T) {
	hash, err := HashAPIKey("k-123")
	if err != nil {
		t.Fatalf("HashAPIKey failed: %v", err)
	}
	op := Operator{JWTSecret: "s", APIKeyHash: hash}
	h := op.RequireRole(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(APIKeyHeader, "k-123")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("api key: expected 204, got %d", rw.Code)
	}

	req.Header.Set(APIKeyHeader, "nope")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("bad api key: expected 401, got %d", rw.Code)
	}

	token, _ := SignHS256(Claims{Sub: "viewer", Role: "viewer"}, "s")
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("wrong role: expected 403, got %d", rw.Code)
	}
}

func TestRequireRoleDisabled(t *testing.T) {
	h := Operator{}.RequireRole(http.NotFoundHandler(), RoleAdmin)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
}

func signRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	headerJSON, err := json.Marshal(Header{Alg: "RS256", Typ: "JWT", Kid: kid})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	hash := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return "", err
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}
