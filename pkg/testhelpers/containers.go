// Package testhelpers starts throwaway PostgreSQL and SQL Server containers
// for row store integration tests. Each server is started once per test
// binary and shared; tests truncate the tables they use.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	_ "github.com/microsoft/go-mssqldb"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/database"
	"github.com/ekaya-inc/ekaya-insight/pkg/retry"
)

// Images the row store tests run against.
const (
	PostgresImage  = "postgres:16-alpine"
	SQLServerImage = "mcr.microsoft.com/mssql/server:2022-latest"
)

const (
	testPassword      = "test_password"
	sqlServerPassword = "Insight_test_1"
	testDatabase      = "insight_test"
)

// TestDB is the shared PostgreSQL server with a superuser pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

// InsightDB is a migrated PostgreSQL row store database.
type InsightDB struct {
	DB      *database.DB
	ConnStr string
}

// SQLServerDB is a migrated SQL Server row store database.
type SQLServerDB struct {
	Container testcontainers.Container
	DB        *sql.DB
	ConnStr   string
}

// once memoizes a container setup across the test binary.
type once[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (o *once[T]) get(t *testing.T, what string, setup func(context.Context) (T, error)) T {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
	o.once.Do(func() {
		o.val, o.err = setup(context.Background())
	})
	if o.err != nil {
		t.Fatalf("Failed to set up %s: %v", what, o.err)
	}
	return o.val
}

var (
	postgresOnce  once[*TestDB]
	insightOnce   once[*InsightDB]
	sqlServerOnce once[*SQLServerDB]
)

// GetTestDB returns the shared PostgreSQL server.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()
	return postgresOnce.get(t, "PostgreSQL container", setupPostgres)
}

// GetInsightDB returns the shared, migrated PostgreSQL row store database.
func GetInsightDB(t *testing.T) *InsightDB {
	t.Helper()
	testDB := GetTestDB(t)
	return insightOnce.get(t, "PostgreSQL row store", func(ctx context.Context) (*InsightDB, error) {
		return setupInsightDB(ctx, testDB)
	})
}

// GetSQLServerDB returns the shared, migrated SQL Server row store database.
func GetSQLServerDB(t *testing.T) *SQLServerDB {
	t.Helper()
	return sqlServerOnce.get(t, "SQL Server container", setupSQLServer)
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port nat.Port) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start %s: %w", req.Image, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container port: %w", err)
	}
	return container, host + ":" + mapped.Port(), nil
}

func setupPostgres(ctx context.Context) (*TestDB, error) {
	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "test_data",
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": testPassword,
		},
		// The server restarts once after initdb, so the line appears twice.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")
	if err != nil {
		return nil, err
	}

	connStr := fmt.Sprintf("postgres://ekaya:%s@%s/test_data?sslmode=disable", testPassword, addr)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := retry.Do(ctx, retry.StartupConfig(), func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres never answered: %w", err)
	}

	return &TestDB{Container: container, Pool: pool, ConnStr: connStr}, nil
}

func setupInsightDB(ctx context.Context, testDB *TestDB) (*InsightDB, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            testDB.ConnStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to row store database: %w", err)
	}

	// golang-migrate closes the handle it is given.
	sqlDB, err := sql.Open("pgx", testDB.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &InsightDB{DB: db, ConnStr: testDB.ConnStr}, nil
}

func setupSQLServer(ctx context.Context) (*SQLServerDB, error) {
	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        SQLServerImage,
		ExposedPorts: []string{"1433/tcp"},
		Env: map[string]string{
			"ACCEPT_EULA":       "Y",
			"MSSQL_SA_PASSWORD": sqlServerPassword,
			"MSSQL_PID":         "Developer",
		},
		WaitingFor: wait.ForLog("SQL Server is now ready for client connections").
			WithStartupTimeout(3 * time.Minute),
	}, "1433/tcp")
	if err != nil {
		return nil, err
	}

	connStr := func(dbName string) string {
		q := url.Values{"database": {dbName}, "encrypt": {"disable"}}
		return (&url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword("sa", sqlServerPassword),
			Host:     addr,
			RawQuery: q.Encode(),
		}).String()
	}

	master, err := sql.Open("sqlserver", connStr("master"))
	if err != nil {
		return nil, fmt.Errorf("failed to open master connection: %w", err)
	}
	defer master.Close()
	err = retry.Do(ctx, retry.StartupConfig(), func() error {
		_, err := master.ExecContext(ctx, "IF DB_ID('"+testDatabase+"') IS NULL CREATE DATABASE "+testDatabase)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test database: %w", err)
	}

	dsn := connStr(testDatabase)
	migrateDB, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer migrateDB.Close()
	if err := database.RunSQLServerMigrations(migrateDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open row store connection: %w", err)
	}
	return &SQLServerDB{Container: container, DB: db, ConnStr: dsn}, nil
}

// TruncateRowStore empties the PostgreSQL row store tables.
func TruncateRowStore(t *testing.T, db *database.DB) {
	t.Helper()
	_, err := db.Exec(context.Background(), "TRUNCATE insight_rows, insight_dataset_versions")
	if err != nil {
		t.Fatalf("Failed to truncate row store: %v", err)
	}
}

// TruncateSQLServerRowStore empties the SQL Server row store tables. Rows
// reference versions, so they go first.
func TruncateSQLServerRowStore(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range []string{"insight_rows", "insight_dataset_versions"} {
		if _, err := db.ExecContext(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("Failed to empty %s: %v", table, err)
		}
	}
}
