// Package linktoken signs appointment ids so approve/reject links cannot be forged.
package linktoken

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SecretName is the app_secrets row holding the HMAC key.
const SecretName = "hmac_secret"

const secretBytes = 64

// DefaultRefresh is how long a store-backed signer trusts its cached secret
// before re-reading app_secrets.
const DefaultRefresh = 5 * time.Minute

type SecretStore interface {
	GetSecret(ctx context.Context, name string) ([]byte, bool, error)
	// PutSecretIfAbsent must leave an existing value untouched.
	PutSecretIfAbsent(ctx context.Context, name string, value []byte) error
}

// Signer produces deterministic tokens: the same id always yields the same
// token until the secret changes. There is no expiry. A replaced app_secrets
// row is picked up within the refresh interval.
type Signer struct {
	store   SecretStore
	refresh time.Duration
	now     func() time.Time

	mu       sync.Mutex
	secret   []byte
	loadedAt time.Time
}

func NewSigner(store SecretStore) *Signer {
	return &Signer{store: store, refresh: DefaultRefresh, now: time.Now}
}

// WithRefresh sets how often the stored secret is re-read. Zero or less
// keeps DefaultRefresh.
func (s *Signer) WithRefresh(d time.Duration) *Signer {
	if d > 0 {
		s.refresh = d
	}
	return s
}

// NewStaticSigner pins the secret and never touches a store.
func NewStaticSigner(secret []byte) *Signer {
	return &Signer{secret: append([]byte(nil), secret...)}
}

func (s *Signer) Sign(ctx context.Context, appointmentID string) (string, error) {
	if appointmentID == "" {
		return "", errors.New("appointment id is required")
	}
	key, err := s.key(ctx)
	if err != nil {
		return "", err
	}
	return sign(key, appointmentID), nil
}

// Verify reports whether token was issued for appointmentID under the current secret.
func (s *Signer) Verify(ctx context.Context, appointmentID, token string) (bool, error) {
	if appointmentID == "" || token == "" {
		return false, nil
	}
	key, err := s.key(ctx)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(sign(key, appointmentID)), []byte(token)), nil
}

func (s *Signer) key(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		if len(s.secret) > 0 {
			return s.secret, nil
		}
		return nil, errors.New("linktoken: no secret configured")
	}
	if len(s.secret) > 0 && s.now().Sub(s.loadedAt) < s.refresh {
		return s.secret, nil
	}

	secret, ok, err := s.store.GetSecret(ctx, SecretName)
	if err != nil {
		if len(s.secret) > 0 {
			// Keep serving the last known secret while the store is unreachable.
			return s.secret, nil
		}
		return nil, fmt.Errorf("load signing secret: %w", err)
	}
	if !ok {
		fresh := make([]byte, secretBytes)
		if _, err := rand.Read(fresh); err != nil {
			return nil, err
		}
		if err := s.store.PutSecretIfAbsent(ctx, SecretName, fresh); err != nil {
			return nil, fmt.Errorf("store signing secret: %w", err)
		}
		// Another instance may have won the insert; use whatever is stored.
		secret, ok, err = s.store.GetSecret(ctx, SecretName)
		if err != nil {
			return nil, fmt.Errorf("reload signing secret: %w", err)
		}
		if !ok {
			return nil, errors.New("signing secret missing after insert")
		}
	}
	s.secret = secret
	s.loadedAt = s.now()
	return secret, nil
}

func sign(key []byte, appointmentID string) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(appointmentID))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}
