package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storagelabels/backend/internal/database"
	"github.com/storagelabels/backend/internal/models"
)

// setupTestDB connects to the database named by TEST_DATABASE_URL,
// applies the migrations, and wipes all rows so each test starts from a
// clean slate. Tests that call it are skipped when the variable is not
// set.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database integration test")
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		t.Fatalf("failed to parse test database config: %v", err)
	}
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 10 * time.Minute

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("failed to create test database pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}
	if err := database.RunMigrations(ctx, pool, "../../migrations"); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanupTestData(t, pool)
	return pool
}

// cleanupTestData deletes in child-first order to respect the foreign
// keys.
func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	queries := []string{
		"DELETE FROM items",
		"DELETE FROM boxes",
		"DELETE FROM image_metadata",
		"DELETE FROM key_rotations",
		"DELETE FROM encryption_keys",
		"DELETE FROM user_locations",
		"DELETE FROM locations",
		"DELETE FROM users",
		"DELETE FROM common_locations",
	}
	for _, q := range queries {
		if _, err := pool.Exec(context.Background(), q); err != nil {
			t.Fatalf("failed to clean test data: %v", err)
		}
	}
}

// createTestUser inserts a user with a unique id and email.
func createTestUser(t *testing.T, ctx context.Context, repo *UserRepository) *models.User {
	t.Helper()

	id := uuid.New().String()
	user, err := repo.Create(ctx, &models.User{
		ID:           id,
		EmailAddress: id + "@example.com",
		PasswordHash: "hash",
		Preferences:  []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// createTestLocation makes a location owned by ownerID; Create grants
// the owner level as part of the insert.
func createTestLocation(t *testing.T, ctx context.Context, repo *LocationRepository, name, ownerID string) *models.Location {
	t.Helper()

	loc, err := repo.Create(ctx, name, ownerID)
	if err != nil {
		t.Fatalf("failed to create test location: %v", err)
	}
	return loc
}

func createTestBox(t *testing.T, ctx context.Context, repo *BoxRepository, locationID int64, code, name, description string) *models.Box {
	t.Helper()

	var desc *string
	if description != "" {
		desc = &description
	}
	box, err := repo.Create(ctx, &models.Box{
		ID:          uuid.New(),
		Code:        code,
		Name:        name,
		Description: desc,
		LocationID:  locationID,
	})
	if err != nil {
		t.Fatalf("failed to create test box: %v", err)
	}
	return box
}

func createTestItem(t *testing.T, ctx context.Context, repo *ItemRepository, boxID uuid.UUID, name, description string) *models.Item {
	t.Helper()

	var desc *string
	if description != "" {
		desc = &description
	}
	item, err := repo.Create(ctx, &models.Item{
		ID:          uuid.New(),
		BoxID:       boxID,
		Name:        name,
		Description: desc,
	})
	if err != nil {
		t.Fatalf("failed to create test item: %v", err)
	}
	return item
}
