package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/md-rashed-zaman/easybook/libs/db"
)

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

type ProviderEventRepository struct {
	pool *db.Pool
}

func NewProviderEventRepository(pool *db.Pool) *ProviderEventRepository {
	return &ProviderEventRepository{pool: pool}
}

// Record stores a webhook delivery once; replays return ErrDuplicateProviderEvent.
func (r *ProviderEventRepository) Record(ctx context.Context, evt ProviderEvent) error {
	if !json.Valid(evt.Payload) {
		return errors.New("provider event payload is not valid json")
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, evt.Payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

func (r *ProviderEventRepository) Forget(ctx context.Context, provider, providerEventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM provider_events WHERE provider = $1 AND provider_event_id = $2`, provider, providerEventID)
	return err
}
