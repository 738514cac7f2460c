package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/rp?sslmode=disable", migrationURL("postgres://u:p@localhost:5432/rp?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/rp", migrationURL("postgresql://localhost/rp"))
	require.Equal(t, "pgx5://already", migrationURL("pgx5://already"))
}
