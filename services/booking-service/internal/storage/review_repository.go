package storage

import (
	"context"

	"github.com/md-rashed-zaman/easybook/libs/db"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
)

type ReviewRepository struct {
	pool *db.Pool
}

func NewReviewRepository(pool *db.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

func (r *ReviewRepository) Insert(ctx context.Context, rv model.Review) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reviews (shopkeeper_id, rating, text, reviewer_email)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, rv.ShopkeeperID, rv.Rating, rv.Text, rv.ReviewerEmail).Scan(&id)
	return id, err
}
