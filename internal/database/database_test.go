package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialeye/internal/logging"
	"github.com/socialeye/internal/models"
)

func TestOpen_CreatesDirectoryAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "alerts.db")

	db, err := Open(path, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	assert.True(t, db.Migrator().HasTable(&models.Alert{}))
	assert.True(t, db.Migrator().HasTable(&models.AlertRule{}))
	assert.True(t, db.Migrator().HasTable(&models.RuleTombstone{}))
	assert.True(t, db.Migrator().HasTable(&models.MetricSample{}))
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
