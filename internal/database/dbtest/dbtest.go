// Package dbtest starts a throwaway PostgreSQL for integration tests.
package dbtest

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/cuongbtq/recipe-import/internal/database"
)

const (
	postgresImage       = "postgres"
	postgresTag         = "16-alpine"
	containerTTLSeconds = 300
)

var (
	once         sync.Once
	containerURL string
	containerErr error
)

// Open returns a migrated database. TEST_DATABASE_URL is used when set,
// otherwise a postgres container is started through Docker. The test is
// skipped under -short or when neither is available.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		once.Do(func() { containerURL, containerErr = startContainer() })
		if containerErr != nil {
			t.Skipf("no test database: %v", containerErr)
		}
		url = containerURL
	}

	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		t.Skipf("test database not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(url); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	Truncate(t, db)
	return db
}

// Truncate empties every table
func Truncate(t *testing.T, db *sqlx.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE import_items, import_jobs, component_steps, component_ingredients,
		recipe_components, recipe_tags, recipes`); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// startContainer runs one postgres container per test binary. The container
// is removed by Docker once it expires.
func startContainer() (string, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return "", fmt.Errorf("docker not available: %w", err)
	}
	if err := pool.Client.Ping(); err != nil {
		return "", fmt.Errorf("docker not reachable: %w", err)
	}
	pool.MaxWait = 60 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: postgresImage,
		Tag:        postgresTag,
		Env: []string{
			"POSTGRES_USER=recipes",
			"POSTGRES_PASSWORD=recipes",
			"POSTGRES_DB=recipes_test",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return "", fmt.Errorf("failed to start postgres container: %w", err)
	}
	_ = resource.Expire(containerTTLSeconds)

	url := fmt.Sprintf("postgres://recipes:recipes@%s/recipes_test?sslmode=disable", resource.GetHostPort("5432/tcp"))

	if err := pool.Retry(func() error {
		db, err := sqlx.Open("postgres", url)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Ping()
	}); err != nil {
		_ = pool.Purge(resource)
		return "", fmt.Errorf("postgres container never became ready: %w", err)
	}

	return url, nil
}
