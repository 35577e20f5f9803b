package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"chat-keystore/observability"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrateURL rewrites a postgres URL to the scheme the pgx/v5 migrate
// driver registers
func migrateURL(connString string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix)
		}
	}
	return connString
}

// Migrate applies the embedded SQL migrations, or rolls them all back
func (p *Postgres) Migrate(ctx context.Context, up bool) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(p.connString))
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	direction := "up"
	if up {
		err = m.Up()
	} else {
		direction = "down"
		err = m.Down()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		observability.Info("no migrations to apply", "direction", direction)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations %s: %w", direction, err)
	}

	observability.Info("migrations applied", "direction", direction)
	return nil
}
