package storage

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/md-rashed-zaman/easybook/libs/db"
)

// Migrate applies every .sql file in fsys in name order. The files are idempotent DDL.
func Migrate(ctx context.Context, pool *db.Pool, fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}
