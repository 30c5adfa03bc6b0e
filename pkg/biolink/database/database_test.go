package database

import (
	"testing"

	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		dsn     string
		name    string
		wantErr bool
	}{
		{"sqlite://biolink.db", "sqlite", false},
		{":memory:", "sqlite", false},
		{"postgres://u:p@localhost:5432/biolink", "postgres", false},
		{"postgresql://u:p@localhost/biolink", "postgres", false},
		{"mysql://u:p@localhost/biolink", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			d, err := Dialector(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
		})
	}
}

func TestConnectAndMigrate(t *testing.T) {
	t.Cleanup(func() {
		Close()
		DB = nil
	})

	require.NoError(t, Connect("sqlite://:memory:", false))
	require.NoError(t, Migrate())

	db := GetDB()
	require.NotNil(t, db)
	for _, m := range models.AllModels() {
		assert.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}
}

func TestMigrateWithoutConnection(t *testing.T) {
	DB = nil
	assert.Error(t, Migrate())
	assert.NoError(t, Close())
}
