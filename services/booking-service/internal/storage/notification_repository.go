package storage

import (
	"context"

	"github.com/md-rashed-zaman/easybook/libs/db"
)

type Notification struct {
	AppointmentID string
	ShopkeeperID  string
	Kind          string
	Recipient     string
	Subject       string
	Status        string
	Error         string
}

type NotificationRepository struct {
	pool *db.Pool
}

func NewNotificationRepository(pool *db.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, shopkeeper_id, kind, recipient, subject, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
	`, n.AppointmentID, n.ShopkeeperID, n.Kind, n.Recipient, n.Subject, n.Status, n.Error)
	return err
}
