package storage

import (
	"testing"

	"github.com/cuongbtq/recipe-import/internal/database/dbtest"
	"github.com/cuongbtq/recipe-import/shared/logger"
	"github.com/cuongbtq/recipe-import/shared/postgresql"
)

func TestPostgresStore(t *testing.T) {
	db := dbtest.Open(t)
	log := logger.NewDiscard().Logger
	client := postgresql.NewClientFromDB(db, log)

	runJobStoreTests(t, func(t *testing.T) JobStore {
		dbtest.Truncate(t, db)
		return NewPostgresStore(client, log)
	})
}
