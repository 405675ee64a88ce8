package calendar

import (
	"context"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/easybook/libs/db"
)

// Local keeps events in the calendar_events table. It is used when no
// Google credentials are configured.
type Local struct {
	pool *db.Pool
}

func NewLocal(pool *db.Pool) *Local {
	return &Local{pool: pool}
}

func (l *Local) Create(ctx context.Context, evt Event) (string, error) {
	if err := evt.Validate(); err != nil {
		return "", err
	}
	id := "evt_" + uuid.NewString()
	_, err := l.pool.Exec(ctx, `
		INSERT INTO calendar_events (id, appointment_id, title, starts_at, ends_at, guest_email, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, evt.AppointmentID, evt.Title, evt.Start, evt.End, evt.GuestEmail, evt.Description)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (l *Local) Cancel(ctx context.Context, eventID string) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE calendar_events SET cancelled_at = now()
		WHERE id = $1 AND cancelled_at IS NULL
	`, eventID)
	return err
}
