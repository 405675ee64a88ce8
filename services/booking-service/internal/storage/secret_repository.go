package storage

import (
	"context"

	"github.com/md-rashed-zaman/easybook/libs/db"
)

type SecretRepository struct {
	pool *db.Pool
}

func NewSecretRepository(pool *db.Pool) *SecretRepository {
	return &SecretRepository{pool: pool}
}

func (r *SecretRepository) GetSecret(ctx context.Context, name string) ([]byte, bool, error) {
	var value []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM app_secrets WHERE name = $1`, name).Scan(&value)
	if IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *SecretRepository) PutSecretIfAbsent(ctx context.Context, name string, value []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO app_secrets (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, value)
	return err
}
