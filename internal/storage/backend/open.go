// Package backend opens the storage backend named in the configuration.
package backend

import (
	"context"
	"fmt"

	"a11ywatch/internal/config"
	"a11ywatch/internal/storage"
	"a11ywatch/internal/storage/mysql"
	"a11ywatch/internal/storage/postgres"
	"a11ywatch/internal/storage/sqlite"
)

// Open connects to driver at url and runs its migrations.
func Open(ctx context.Context, driver, url string) (storage.Backend, error) {
	switch driver {
	case config.DriverSQLite:
		store, err := sqlite.New(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.New(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		return store, nil
	case config.DriverMySQL:
		store, err := mysql.New(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mysql storage: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}
