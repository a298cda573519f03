package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/database"
)

func TestMigrations_Ordered(t *testing.T) {
	migrations, err := database.Migrations()
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, database.Migration{Version: 1, Name: "create_news", HasDown: true}, migrations[0])
	assert.Equal(t, database.Migration{Version: 2, Name: "add_created_at_unix", HasDown: true}, migrations[1])
	assert.Equal(t, database.Migration{Version: 3, Name: "unique_publisher_url", HasDown: true}, migrations[2])
}
