package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for migrations
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/database"
)

// PostgresImage is the image used for integration tests.
const PostgresImage = "postgres:16-alpine"

const (
	appRole     = "wwfm_app"
	appPassword = "app_password"
)

var appRoleSQL = `
	CREATE ROLE ` + appRole + ` LOGIN PASSWORD '` + appPassword + `' NOSUPERUSER NOBYPASSRLS;
	GRANT USAGE ON SCHEMA public TO ` + appRole + `;
	GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO ` + appRole + `;
	GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO ` + appRole + `;`

// EngineDB holds a shared PostgreSQL container with migrations applied.
type EngineDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedEngineDB     *EngineDB
	sharedEngineDBOnce sync.Once
	sharedEngineDBErr  error
)

// GetEngineDB returns a shared engine database for integration tests.
// The container is created once, migrated, and reused across all tests in
// the run. Tests isolate themselves by creating their own goals and
// solutions rather than truncating tables.
func GetEngineDB(t *testing.T) *EngineDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedEngineDBOnce.Do(func() {
		sharedEngineDB, sharedEngineDBErr = setupEngineDB()
	})

	if sharedEngineDBErr != nil {
		t.Fatalf("Failed to setup engine database: %v", sharedEngineDBErr)
	}

	return sharedEngineDB
}

func setupEngineDB() (*EngineDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "wwfm_test",
			"POSTGRES_USER":     "wwfm",
			"POSTGRES_PASSWORD": "test_password",
		},
		// Postgres logs readiness twice: once for the init server, once for the real one.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	adminConnStr := fmt.Sprintf("postgres://wwfm:test_password@%s:%s/wwfm_test?sslmode=disable",
		host, port.Port())

	// golang-migrate needs database/sql
	sqlDB, err := sql.Open("pgx", adminConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// The container user is a superuser and bypasses row level security.
	// Tests connect as an ordinary role so the ratings policies apply.
	if _, err := sqlDB.ExecContext(ctx, appRoleSQL); err != nil {
		return nil, fmt.Errorf("failed to create app role: %w", err)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/wwfm_test?sslmode=disable",
		appRole, appPassword, host, port.Port())

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine database: %w", err)
	}

	return &EngineDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}

// SystemContext returns a context with a system database scope. The scope
// is released when the test finishes.
func (e *EngineDB) SystemContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cleanup, err := e.DB.SystemContext(context.Background())
	if err != nil {
		t.Fatalf("Failed to acquire system scope: %v", err)
	}
	t.Cleanup(cleanup)
	return ctx
}

// UserContext returns a context whose database scope acts as userID.
func (e *EngineDB) UserContext(t *testing.T, userID uuid.UUID) context.Context {
	t.Helper()
	scope, err := e.DB.WithUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to acquire user scope: %v", err)
	}
	t.Cleanup(scope.Close)
	return database.SetScope(context.Background(), scope)
}

// Fixture is a goal plus one solution variant, inserted directly with SQL so
// repository tests do not depend on each other.
type Fixture struct {
	GoalID     uuid.UUID
	SolutionID uuid.UUID
	VariantID  uuid.UUID
	Category   string
}

// CreateFixture inserts an approved goal, solution and default variant.
func (e *EngineDB) CreateFixture(t *testing.T, category string) *Fixture {
	t.Helper()
	ctx := context.Background()
	f := &Fixture{
		GoalID:     uuid.New(),
		SolutionID: uuid.New(),
		VariantID:  uuid.New(),
		Category:   category,
	}

	_, err := e.DB.Pool.Exec(ctx,
		`INSERT INTO goals (id, title, is_approved) VALUES ($1, $2, true)`,
		f.GoalID, "Goal "+f.GoalID.String()[:8])
	if err != nil {
		t.Fatalf("Failed to insert goal: %v", err)
	}

	_, err = e.DB.Pool.Exec(ctx,
		`INSERT INTO solutions (id, title, category, is_approved) VALUES ($1, $2, $3, true)`,
		f.SolutionID, "Solution "+f.SolutionID.String()[:8], category)
	if err != nil {
		t.Fatalf("Failed to insert solution: %v", err)
	}

	_, err = e.DB.Pool.Exec(ctx,
		`INSERT INTO solution_variants (id, solution_id, variant_name, is_default) VALUES ($1, $2, 'Standard', true)`,
		f.VariantID, f.SolutionID)
	if err != nil {
		t.Fatalf("Failed to insert variant: %v", err)
	}

	return f
}
