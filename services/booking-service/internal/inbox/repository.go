package inbox

import (
	"context"

	"github.com/md-rashed-zaman/easybook/libs/db"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/storage"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record reports false when eventID was already consumed.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if storage.IsConflict(err) {
		return false, nil
	}
	return false, err
}

// Forget removes a record so a failed event can be retried on redelivery.
func (r *Repository) Forget(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID)
	return err
}
