package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/easybook/libs/db"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/outbox"
)

type ShopkeeperRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewShopkeeperRepository(pool *db.Pool, outboxRepo *outbox.Repository) *ShopkeeperRepository {
	return &ShopkeeperRepository{pool: pool, outbox: outboxRepo}
}

const shopkeeperColumns = `
	id, shop_name, owner_name, email, phone, address, map_link, business_details,
	min_charge, upi_id, telegram, verified, booking_link, qr_link, onboarded_at, created_at`

// FindByID is an exact-match lookup. Unknown or empty ids are not an error.
func (r *ShopkeeperRepository) FindByID(ctx context.Context, id string) (model.Shopkeeper, bool, error) {
	if id == "" {
		return model.Shopkeeper{}, false, nil
	}
	sk, err := scanShopkeeper(r.pool.QueryRow(ctx, `SELECT `+shopkeeperColumns+` FROM shopkeepers WHERE id = $1`, id))
	if IsNotFound(err) {
		return model.Shopkeeper{}, false, nil
	}
	if err != nil {
		return model.Shopkeeper{}, false, err
	}
	return sk, true, nil
}

func (r *ShopkeeperRepository) Create(ctx context.Context, sk model.Shopkeeper, events ...outbox.Event) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO shopkeepers
				(id, shop_name, owner_name, email, phone, address, map_link, business_details,
				 min_charge, upi_id, telegram, verified, booking_link, qr_link, onboarded_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`, sk.ID, sk.ShopName, sk.OwnerName, sk.Email, sk.Phone, sk.Address, sk.MapLink, sk.BusinessDetails,
			sk.MinCharge, sk.UPIID, sk.Telegram, sk.Verified, sk.BookingLink, sk.QRLink, sk.OnboardedAt, sk.CreatedAt)
		if err != nil {
			return err
		}
		for _, evt := range events {
			if err := r.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkVerified flips verified to true. It reports false when the shop was
// already verified; pgx.ErrNoRows when it does not exist.
func (r *ShopkeeperRepository) MarkVerified(ctx context.Context, id string, events ...outbox.Event) (bool, error) {
	changed := false
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var was bool
		if err := tx.QueryRow(ctx, `SELECT verified FROM shopkeepers WHERE id = $1 FOR UPDATE`, id).Scan(&was); err != nil {
			return err
		}
		if was {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE shopkeepers SET verified = true WHERE id = $1`, id); err != nil {
			return err
		}
		changed = true
		for _, evt := range events {
			if err := r.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
	return changed, err
}

// ListVerifiedMissingLinks finds verified shops with no booking or QR link yet.
func (r *ShopkeeperRepository) ListVerifiedMissingLinks(ctx context.Context) ([]model.Shopkeeper, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+shopkeeperColumns+`
		FROM shopkeepers
		WHERE verified AND (booking_link = '' OR qr_link = '')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Shopkeeper
	for rows.Next() {
		sk, err := scanShopkeeper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

func (r *ShopkeeperRepository) UpdateLinks(ctx context.Context, id, bookingLink, qrLink string, onboardedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE shopkeepers
		SET booking_link = $2,
			qr_link = $3,
			onboarded_at = COALESCE(onboarded_at, $4)
		WHERE id = $1
	`, id, bookingLink, qrLink, onboardedAt)
	return err
}

func scanShopkeeper(row pgx.Row) (model.Shopkeeper, error) {
	var sk model.Shopkeeper
	err := row.Scan(
		&sk.ID,
		&sk.ShopName,
		&sk.OwnerName,
		&sk.Email,
		&sk.Phone,
		&sk.Address,
		&sk.MapLink,
		&sk.BusinessDetails,
		&sk.MinCharge,
		&sk.UPIID,
		&sk.Telegram,
		&sk.Verified,
		&sk.BookingLink,
		&sk.QRLink,
		&sk.OnboardedAt,
		&sk.CreatedAt,
	)
	return sk, err
}
