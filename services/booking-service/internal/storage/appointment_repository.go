package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/easybook/libs/db"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/outbox"
)

type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `
	id, shopkeeper_id, customer_name, customer_email, customer_phone, customer_address,
	requested_date, requested_time, status, paid, approval_token, approved_at,
	calendar_event_id, last_error, created_at, updated_at`

// Create inserts appt and its events in one transaction.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment, events ...outbox.Event) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, shopkeeper_id, customer_name, customer_email, customer_phone, customer_address,
				 requested_date, requested_time, status, paid, approval_token, approved_at,
				 calendar_event_id, last_error, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		`, appt.ID, appt.ShopkeeperID, appt.CustomerName, appt.CustomerEmail, appt.CustomerPhone, appt.CustomerAddress,
			appt.RequestedDate, appt.RequestedTime, string(appt.Status), appt.Paid, appt.ApprovalToken, appt.ApprovedAt,
			appt.CalendarEventID, appt.LastError, appt.CreatedAt)
		if err != nil {
			return err
		}
		return r.insertEvents(ctx, tx, events)
	})
}

// Save overwrites the mutable fields of appt and records events in one transaction.
func (r *AppointmentRepository) Save(ctx context.Context, appt model.Appointment, events ...outbox.Event) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET status = $2,
				paid = $3,
				approval_token = $4,
				approved_at = $5,
				calendar_event_id = $6,
				last_error = $7,
				updated_at = now()
			WHERE id = $1
		`, appt.ID, string(appt.Status), appt.Paid, appt.ApprovalToken, appt.ApprovedAt, appt.CalendarEventID, appt.LastError)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return r.insertEvents(ctx, tx, events)
	})
}

func (r *AppointmentRepository) insertEvents(ctx context.Context, tx pgx.Tx, events []outbox.Event) error {
	for _, evt := range events {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (r *AppointmentRepository) SetLastError(ctx context.Context, id, msg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments SET last_error = NULLIF($2, ''), updated_at = now() WHERE id = $1
	`, id, msg)
	return err
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, bool, error) {
	if id == "" {
		return model.Appointment{}, false, nil
	}
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

// CountApprovedInRange counts approved appointments for email whose
// approval time (creation time for legacy rows) falls in [start, end).
func (r *AppointmentRepository) CountApprovedInRange(ctx context.Context, email string, start, end time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE lower(customer_email) = lower($1)
			AND status = 'approved'
			AND COALESCE(approved_at, created_at) >= $2
			AND COALESCE(approved_at, created_at) < $3
	`, email, start, end).Scan(&n)
	return n, err
}

// ListHeldByShop returns pending appointments that never got an approval link,
// i.e. the ones parked while the shop was unverified.
func (r *AppointmentRepository) ListHeldByShop(ctx context.Context, shopkeeperID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE shopkeeper_id = $1
			AND status = 'pending_approval'
			AND approval_token IS NULL
		ORDER BY created_at ASC
	`, shopkeeperID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func (r *AppointmentRepository) ListByShop(ctx context.Context, shopkeeperID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE shopkeeper_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, shopkeeperID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.ShopkeeperID,
		&appt.CustomerName,
		&appt.CustomerEmail,
		&appt.CustomerPhone,
		&appt.CustomerAddress,
		&appt.RequestedDate,
		&appt.RequestedTime,
		&status,
		&appt.Paid,
		&appt.ApprovalToken,
		&appt.ApprovedAt,
		&appt.CalendarEventID,
		&appt.LastError,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	appt.Status = model.Status(status)
	return appt, err
}
