package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdesk/internal/config"
)

func TestDSN(t *testing.T) {
	require.Equal(t, "postgres://x", DSN(config.DatabaseConfig{DSN: "postgres://x", Host: "ignored"}))
	require.Equal(t,
		"host=db port=5432 user=u password=p dbname=rag sslmode=disable",
		DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "rag"}))
}

func TestSplitStatements(t *testing.T) {
	script := `-- tenants
CREATE TABLE a (id TEXT);

-- trailing comment only
;
CREATE INDEX i ON a (id);
`
	require.Equal(t, []string{"CREATE TABLE a (id TEXT)", "CREATE INDEX i ON a (id)"}, splitStatements(script))
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	require.Equal(t, "001_init.sql", files[0])

	content, err := migrationsFS.ReadFile("migrations/" + files[0])
	require.NoError(t, err)
	stmts := splitStatements(string(content))
	require.NotEmpty(t, stmts)
	for _, stmt := range stmts {
		require.False(t, strings.HasPrefix(stmt, "--"), stmt)
	}
}
