// Package settings resolves the runtime knobs operators can change without a
// redeploy. Stored values override the environment defaults.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	KeyFreeBookingsPerMonth       = "free_bookings_per_month"
	KeyAppointmentDurationMinutes = "appointment_duration_minutes"
	KeyReviewsEnabled             = "reviews_enabled"
)

type Values struct {
	FreeBookingsPerMonth       int  `json:"free_bookings_per_month"`
	AppointmentDurationMinutes int  `json:"appointment_duration_minutes"`
	ReviewsEnabled             bool `json:"reviews_enabled"`
}

func Defaults() Values {
	return Values{FreeBookingsPerMonth: 4, AppointmentDurationMinutes: 60, ReviewsEnabled: true}
}

func (v Values) AppointmentDuration() time.Duration {
	return time.Duration(v.AppointmentDurationMinutes) * time.Minute
}

type Store interface {
	All(ctx context.Context) (map[string]string, error)
	Put(ctx context.Context, key, value string) error
}

// Provider caches the merged values for ttl.
type Provider struct {
	store    Store
	defaults Values
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	cached   Values
	loadedAt time.Time
}

func NewProvider(store Store, defaults Values, ttl time.Duration, logger *slog.Logger) *Provider {
	return &Provider{store: store, defaults: defaults, ttl: ttl, logger: logger, now: time.Now}
}

// Current never fails: a store error falls back to the last known values.
func (p *Provider) Current(ctx context.Context) Values {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loadedAt.IsZero() && p.now().Sub(p.loadedAt) < p.ttl {
		return p.cached
	}
	if p.store == nil {
		return p.defaults
	}

	raw, err := p.store.All(ctx)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("settings load failed; using last known values", "err", err)
		}
		if p.loadedAt.IsZero() {
			return p.defaults
		}
		return p.cached
	}
	p.cached = merge(p.defaults, raw, p.logger)
	p.loadedAt = p.now()
	return p.cached
}

// Update validates and persists the given overrides, then drops the cache.
func (p *Provider) Update(ctx context.Context, overrides map[string]string) (Values, error) {
	for k, v := range overrides {
		if err := validate(k, v); err != nil {
			return Values{}, err
		}
	}
	for k, v := range overrides {
		if err := p.store.Put(ctx, k, strings.TrimSpace(v)); err != nil {
			return Values{}, err
		}
	}
	p.mu.Lock()
	p.loadedAt = time.Time{}
	p.mu.Unlock()
	return p.Current(ctx), nil
}

func validate(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case KeyFreeBookingsPerMonth:
		if n, err := strconv.Atoi(value); err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer", key)
		}
	case KeyAppointmentDurationMinutes:
		if n, err := strconv.Atoi(value); err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer", key)
		}
	case KeyReviewsEnabled:
		if _, ok := parseBool(value); !ok {
			return fmt.Errorf("%s must be true or false", key)
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func merge(base Values, raw map[string]string, logger *slog.Logger) Values {
	out := base
	for k, v := range raw {
		if err := validate(k, v); err != nil {
			if logger != nil {
				logger.Warn("ignoring invalid setting", "key", k, "value", v, "err", err)
			}
			continue
		}
		v = strings.TrimSpace(v)
		switch k {
		case KeyFreeBookingsPerMonth:
			out.FreeBookingsPerMonth, _ = strconv.Atoi(v)
		case KeyAppointmentDurationMinutes:
			out.AppointmentDurationMinutes, _ = strconv.Atoi(v)
		case KeyReviewsEnabled:
			out.ReviewsEnabled, _ = parseBool(v)
		}
	}
	return out
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "1", "on":
		return true, true
	case "false", "no", "0", "off":
		return false, true
	}
	return false, false
}
