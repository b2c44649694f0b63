package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recipe-import/internal/database/dbtest"
)

func TestRunMigrations_CreatesTables(t *testing.T) {
	db := dbtest.Open(t)

	tables := []string{
		"import_jobs",
		"import_items",
		"recipes",
		"recipe_tags",
		"recipe_components",
		"component_ingredients",
		"component_steps",
	}

	for _, table := range tables {
		var exists bool
		err := db.Get(&exists, `SELECT EXISTS (
			SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1
		)`, table)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist", table)
	}
}

func TestRunMigrations_CounterConstraint(t *testing.T) {
	db := dbtest.Open(t)

	_, err := db.Exec(`INSERT INTO import_jobs (id, total_posts, processed_posts, successful_posts, failed_posts)
		VALUES ('7f1c0b5e-9f53-4a39-9a52-3c1b5f1c2d10', 2, 3, 2, 1)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import_jobs_counters")
}
