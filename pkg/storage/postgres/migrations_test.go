package postgres

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMigrations(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	last := 0
	for _, m := range migrations {
		assert.Greater(t, m.Version, last, "versions must be strictly ascending")
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
		last = m.Version
	}
}

func TestRunMigrations(t *testing.T) {
	t.Run("applies pending migrations in order", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT version FROM schema_migrations").
			WillReturnRows(sqlmock.NewRows([]string{"version"}))

		for range GetMigrations() {
			mock.ExpectBegin()
			mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("INSERT INTO schema_migrations").
				WillReturnResult(sqlmock.NewResult(1, 1))
			mock.ExpectCommit()
		}

		require.NoError(t, RunMigrations(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips already applied versions", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
			WillReturnResult(sqlmock.NewResult(0, 0))

		rows := sqlmock.NewRows([]string{"version"})
		for _, m := range GetMigrations() {
			rows.AddRow(m.Version)
		}
		mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(rows)

		require.NoError(t, RunMigrations(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRowSecurityContract(t *testing.T) {
	var ddl string
	for _, m := range GetMigrations() {
		if strings.Contains(m.SQL, "ROW LEVEL SECURITY") {
			ddl = m.SQL
		}
	}
	require.NotEmpty(t, ddl, "row security migration missing")

	t.Run("row security enabled on tenant tables", func(t *testing.T) {
		assert.Contains(t, ddl, "ALTER TABLE bot_users ENABLE ROW LEVEL SECURITY")
		assert.Contains(t, ddl, "ALTER TABLE bots ENABLE ROW LEVEL SECURITY")
	})

	t.Run("application role has an unrestricted bot_users policy", func(t *testing.T) {
		// Authorization happens in application code. Without this policy the
		// standard pool would see zero assignment rows and reject every
		// write once row security is enabled.
		app := regexp.MustCompile(
			`(?s)CREATE POLICY bot_users_app ON bot_users\s+TO botdeck_app\s+USING \(TRUE\)\s+WITH CHECK \(TRUE\)`)
		assert.True(t, app.MatchString(ddl))
	})

	t.Run("session-variable policies bind only the direct role", func(t *testing.T) {
		for _, stmt := range strings.Split(ddl, ";") {
			if !strings.Contains(stmt, "current_setting('botdeck.principal_id'") {
				continue
			}
			assert.Contains(t, stmt, "TO botdeck_direct",
				"principal-bound policies must not apply to the application role, which never sets the session variable")
		}
	})

	t.Run("application role cannot reach the bot catalog", func(t *testing.T) {
		for _, stmt := range strings.Split(ddl, ";") {
			if !strings.Contains(stmt, "botdeck_app") {
				continue
			}
			if strings.HasPrefix(strings.TrimSpace(stmt), "GRANT") {
				assert.NotRegexp(t, `\bbots\b`, stmt,
					"catalog enumeration must require the elevated credential")
			}
		}
		assert.NotContains(t, ddl, "CREATE POLICY bots_app")
	})

	t.Run("grants cover the standard pool's query surface", func(t *testing.T) {
		assert.Contains(t, ddl, "GRANT SELECT, INSERT, UPDATE, DELETE ON profiles, bot_users, invitations TO botdeck_app")
		assert.Contains(t, ddl, "GRANT SELECT ON superusers TO botdeck_app")
		assert.Contains(t, ddl, "GRANT INSERT ON audit_log TO botdeck_app")
		assert.Contains(t, ddl, "GRANT USAGE ON SEQUENCE bot_users_id_seq, audit_log_id_seq TO botdeck_app")
		assert.Contains(t, ddl, "GRANT EXECUTE ON FUNCTION is_superadmin(UUID) TO botdeck_app, botdeck_direct")
	})
}
