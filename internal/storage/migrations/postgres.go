package migrations

import (
	"context"
	"fmt"
	"log"

	"pump-candles/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded candles and tokens schema in lexical order.
// Every file uses IF NOT EXISTS, so reruns are no-ops.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}

	files, err := Load(EnginePostgres)
	if err != nil {
		return err
	}

	for _, m := range files {
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		logger.Printf("applied postgres migration %s", m.Name)
	}

	return nil
}
