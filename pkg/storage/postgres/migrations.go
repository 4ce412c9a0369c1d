package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations.
//
// Migrations run with the elevated credential because they create roles,
// policies, and the SECURITY DEFINER function; the standard role cannot.
// The migrating role needs CREATEROLE for migration 7.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create profiles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS profiles (
					id UUID PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					first_name TEXT,
					surname TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_profiles_email ON profiles(email);
			`,
		},
		{
			Version:     2,
			Description: "Create superusers table and is_superadmin function",
			SQL: `
				CREATE TABLE IF NOT EXISTS superusers (
					user_id UUID PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				-- SECURITY DEFINER so the check evaluates with the owner's
				-- privileges and cannot be narrowed by the caller's row-level
				-- policies or spoofed by client-supplied filters.
				CREATE OR REPLACE FUNCTION is_superadmin(principal UUID)
				RETURNS BOOLEAN
				LANGUAGE sql SECURITY DEFINER STABLE AS $fn$
					SELECT EXISTS (
						SELECT 1 FROM superusers
						WHERE user_id = principal AND is_active = TRUE
					)
				$fn$;
			`,
		},
		{
			Version:     3,
			Description: "Create bots table",
			SQL: `
				CREATE TABLE IF NOT EXISTS bots (
					id TEXT PRIMARY KEY,
					display_name TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     4,
			Description: "Create bot_users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS bot_users (
					id BIGSERIAL PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
					bot_id TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
					role TEXT NOT NULL CHECK (role IN ('admin', 'member')),
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					-- Authoritative guard against concurrent duplicate
					-- creates; the application pre-check only produces the
					-- friendlier error in the common case.
					UNIQUE (user_id, bot_id)
				);

				CREATE INDEX IF NOT EXISTS idx_bot_users_user_id ON bot_users(user_id);
				CREATE INDEX IF NOT EXISTS idx_bot_users_bot_id ON bot_users(bot_id);
			`,
		},
		{
			Version:     5,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id UUID PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					first_name TEXT,
					surname TEXT,
					role TEXT NOT NULL CHECK (role IN ('admin', 'member')),
					bot_id TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
					invited_by UUID REFERENCES profiles(id) ON DELETE SET NULL,
					invited_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMPTZ NOT NULL
				);
			`,
		},
		{
			Version:     6,
			Description: "Create audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id BIGSERIAL PRIMARY KEY,
					event_type TEXT NOT NULL,
					actor_id UUID,
					subject_type TEXT NOT NULL,
					subject_id TEXT NOT NULL,
					success BOOLEAN NOT NULL,
					detail TEXT,
					request_id TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_audit_log_actor_id ON audit_log(actor_id);
				CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at);
			`,
		},
		{
			Version:     7,
			Description: "Create access roles and row-level security policies",
			SQL: `
				-- Two non-login roles define the access contract. Login roles
				-- are granted membership in one of them out of band:
				--
				--   botdeck_app     the API server's standard credential.
				--                   Authorization happens in application code
				--                   (classification plus per-mutation gates),
				--                   so it gets an unrestricted policy on
				--                   bot_users and NO access to bots: the bot
				--                   catalog is only reachable through the
				--                   elevated credential.
				--   botdeck_direct  ad-hoc/reporting access. Sees only rows
				--                   for the principal bound via
				--                   SELECT set_config('botdeck.principal_id', '<uuid>', false).
				DO $do$ BEGIN
					IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = 'botdeck_app') THEN
						CREATE ROLE botdeck_app NOLOGIN;
					END IF;
					IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = 'botdeck_direct') THEN
						CREATE ROLE botdeck_direct NOLOGIN;
					END IF;
				END $do$;

				GRANT SELECT, INSERT, UPDATE, DELETE ON profiles, bot_users, invitations TO botdeck_app;
				-- fallback superadmin lookup reads the table directly
				GRANT SELECT ON superusers TO botdeck_app;
				GRANT INSERT ON audit_log TO botdeck_app;
				GRANT USAGE ON SEQUENCE bot_users_id_seq, audit_log_id_seq TO botdeck_app;
				GRANT EXECUTE ON FUNCTION is_superadmin(UUID) TO botdeck_app, botdeck_direct;
				GRANT SELECT ON profiles, bots, bot_users, invitations TO botdeck_direct;

				ALTER TABLE bot_users ENABLE ROW LEVEL SECURITY;
				ALTER TABLE bots ENABLE ROW LEVEL SECURITY;

				CREATE POLICY bot_users_app ON bot_users
					TO botdeck_app
					USING (TRUE)
					WITH CHECK (TRUE);

				-- No bots policy for botdeck_app: with row security enabled
				-- and no applicable policy, the standard credential cannot
				-- read the catalog even if granted SELECT later.
				CREATE POLICY bot_users_direct ON bot_users
					TO botdeck_direct
					USING (user_id = current_setting('botdeck.principal_id', true)::uuid);

				CREATE POLICY bots_direct ON bots
					TO botdeck_direct
					USING (EXISTS (
						SELECT 1 FROM bot_users bu
						WHERE bu.bot_id = bots.id
						  AND bu.user_id = current_setting('botdeck.principal_id', true)::uuid
						  AND bu.is_active = TRUE
					));
			`,
		},
	}
}

// RunMigrations applies all pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
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
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
