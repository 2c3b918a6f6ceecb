package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voter-support-api/pkg/config"
)

func TestEmbeddedMigrationsAreGooseAnnotated(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		raw, err := fs.ReadFile(migrationsFS, migrationsDir+"/"+entry.Name())
		require.NoError(t, err)
		body := string(raw)
		assert.True(t, strings.Contains(body, "-- +goose Up"), entry.Name())
		assert.True(t, strings.Contains(body, "-- +goose Down"), entry.Name())
	}
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "support", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=support sslmode=disable", dsn)
}
