package migrate

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-stick/tracker/internal/db"
)

func TestRunRejectsBadInput(t *testing.T) {
	assert.Error(t, Run("", "up"))
	assert.Error(t, Run("postgres://u:p@localhost/db", "sideways"))
}

func TestPgxURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/x?sslmode=disable", pgxURL("postgres://u:p@db:5432/x?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/x", pgxURL("postgresql://u@db/x"))
	assert.Equal(t, "pgx5://already", pgxURL("pgx5://already"))
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(db.MigrationFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(db.MigrationFS, "migrations/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
