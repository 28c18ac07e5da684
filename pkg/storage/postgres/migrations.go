package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns every schema migration in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					type VARCHAR(20) NOT NULL,
					parent_tenant_id VARCHAR(64) REFERENCES tenants(id),
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_tenants_parent_tenant_id ON tenants(parent_tenant_id);
				CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(64) PRIMARY KEY,
					tenant_id VARCHAR(64) NOT NULL REFERENCES tenants(id),
					email VARCHAR(255),
					name VARCHAR(255),
					role VARCHAR(8) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					permissions JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_users_tenant_id ON users(tenant_id);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email IS NOT NULL;
			`,
		},
		{
			Version:     3,
			Description: "Create franchise_clients table",
			SQL: `
				CREATE TABLE IF NOT EXISTS franchise_clients (
					id VARCHAR(64) PRIMARY KEY,
					franchise_tenant_id VARCHAR(64) NOT NULL REFERENCES tenants(id),
					client_tenant_id VARCHAR(64) NOT NULL REFERENCES tenants(id),
					relationship_type VARCHAR(20) NOT NULL DEFAULT 'direct',
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					settings JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_franchise_clients_franchise ON franchise_clients(franchise_tenant_id, status);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_franchise_clients_active_pair
					ON franchise_clients(franchise_tenant_id, client_tenant_id) WHERE status = 'active';
			`,
		},
		{
			Version:     4,
			Description: "Create append-only activity_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS activity_logs (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
					tenant_id VARCHAR(64) NOT NULL,
					user_id VARCHAR(64) NOT NULL,
					action VARCHAR(100) NOT NULL,
					resource VARCHAR(100) NOT NULL,
					resource_id VARCHAR(255),
					status VARCHAR(20) NOT NULL,
					reason VARCHAR(100),
					details JSONB,
					ip_address VARCHAR(45),
					user_agent TEXT,
					request_id VARCHAR(100),
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_activity_logs_timestamp ON activity_logs(timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_activity_logs_tenant_id ON activity_logs(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_activity_logs_user_id ON activity_logs(user_id);

				CREATE OR REPLACE FUNCTION activity_logs_append_only() RETURNS trigger AS $$
				BEGIN
					RAISE EXCEPTION 'activity_logs is append-only';
				END;
				$$ LANGUAGE plpgsql;

				DROP TRIGGER IF EXISTS activity_logs_no_mutation ON activity_logs;
				CREATE TRIGGER activity_logs_no_mutation
					BEFORE UPDATE OR DELETE ON activity_logs
					FOR EACH ROW EXECUTE FUNCTION activity_logs_append_only();
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) error {
	if logger == nil {
		logger = logrus.New()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS gatekeeper_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM gatekeeper_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		log := logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		})
		log.Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO gatekeeper_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Info("migration completed")
	}

	return nil
}
