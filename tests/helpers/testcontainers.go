// This file is a helper for running tests with testcontainers.
// It is used by the integration tests and by the standalone cmd/testcontainers executable.
// Environment variables are optional; unset values fall back to test defaults.
//

package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dbNetworkAlias    = "meddb-db"
	authzNetworkAlias = "authorizer"
	postgresPort      = "5432"

	// SchoolSchema and SchoolTable hold the school directory fixture table.
	SchoolSchema = "skolead"
	SchoolTable  = SchoolSchema + ".person"
)

// ContainerOptions selects the containers to start.
type ContainerOptions struct {
	WithAuthorizer bool
}

type TestContainers struct {
	Network             *testcontainers.DockerNetwork
	DBContainer         testcontainers.Container
	AuthorizerContainer testcontainers.Container

	// DB is reachable from the host through the mapped port.
	DB            config.DBConfig
	AuthzURL      string
	AuthzClientID string
}

func (tc *TestContainers) Terminate(t *testing.T) {
	ctx := context.Background()
	if tc.AuthorizerContainer != nil {
		if err := tc.AuthorizerContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate Authorizer: %v", err)
		}
	}
	if tc.DBContainer != nil {
		if err := tc.DBContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate Postgres: %v", err)
		}
	}
	if tc.Network != nil {
		if err := tc.Network.Remove(ctx); err != nil {
			logMessage(t, "Failed to remove network: %v", err)
		}
	}
}

// Config returns a configuration pointing at the started containers. The school
// directory shares the application database under its own schema.
func (tc *TestContainers) Config() *config.Config {
	return &config.Config{
		Port:                      envOr("PORT", "3000"),
		DB:                        tc.DB,
		SchoolDB:                  tc.DB,
		SchoolTable:               SchoolTable,
		AuthzURL:                  tc.AuthzURL,
		AuthzClientID:             tc.AuthzClientID,
		DirectoryTimeout:          10 * time.Second,
		ReconcileCopyOrganization: true,
		PriorityRoles:             config.DefaultPriorityRoles,
		TopCommitteeID:            1,
		TreeOrphans:               config.TreeOrphansDrop,
		LogLevel:                  "debug",
		LogDevelopment:            true,
	}
}

// CreateTestContainers starts Postgres on a private network, prepares the school
// directory table and optionally starts Authorizer backed by the same server.
func CreateTestContainers(t *testing.T, opts ContainerOptions) (*TestContainers, error) {
	ctx := context.Background()
	testContainers := &TestContainers{}

	nw, err := network.New(ctx)
	if err != nil {
		exitWithError(t, err, "Failed to create network")
		return nil, err
	}
	testContainers.Network = nw
	networkName := nw.Name

	dbUser := envOr("DB_USER", "meddb")
	dbPassword := envOr("DB_PASSWORD", "meddb-test")
	dbName := envOr("DB_DATABASE", "meddb")

	tcpDbPort, err := nat.NewPort("tcp", postgresPort)
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to create DB port")
		return nil, err
	}
	dbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        envOr("DB_IMAGE", "postgres:16-alpine"),
			ExposedPorts: []string{string(tcpDbPort)},
			Env: map[string]string{
				"POSTGRES_USER":     dbUser,
				"POSTGRES_PASSWORD": dbPassword,
				"POSTGRES_DB":       dbName,
			},
			// Postgres restarts once after init scripts, so wait for the second ready line.
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort(tcpDbPort),
			).WithDeadline(90 * time.Second),
			Networks: []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {dbNetworkAlias},
			},
		},
		Started: true,
	})
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to start Postgres")
		return nil, err
	}
	testContainers.DBContainer = dbContainer

	dbHost, _ := dbContainer.Host(ctx)
	dbPort, _ := dbContainer.MappedPort(ctx, tcpDbPort)
	testContainers.DB = config.DBConfig{
		Type:            "postgres",
		Host:            dbHost,
		Port:            dbPort.Port(),
		Database:        dbName,
		User:            dbUser,
		Password:        dbPassword,
		ConnectionLimit: 5,
	}
	logMessage(t, "DB_HOST=%s", dbHost)
	logMessage(t, "DB_PORT=%s", dbPort.Port())

	authzDatabase := envOr("AUTHZ_DATABASE", "authorizer")
	if err := performPostgresDBInit(t, testContainers.DB, opts.WithAuthorizer, authzDatabase); err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to initialize databases")
		return nil, err
	}

	if !opts.WithAuthorizer {
		logMessage(t, "meddb testcontainers started successfully")
		return testContainers, nil
	}

	authzPortNumber := envOr("AUTHZ_PORT", "8080")
	tcpAuthzPort, err := nat.NewPort("tcp", authzPortNumber)
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to create Authorizer port")
		return nil, err
	}
	clientID := envOr("AUTHZ_CLIENT_ID", uuid.New().String())
	authzDbConnection := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPassword, dbNetworkAlias, postgresPort, authzDatabase)
	authzLogLevel := "info"
	if os.Getenv("DEBUG_CONTAINER") == "true" {
		authzLogLevel = "debug"
	}
	authorizerContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        envOr("AUTHZ_IMAGE", "lakhansamani/authorizer:latest"),
			ExposedPorts: []string{string(tcpAuthzPort)},
			Env: map[string]string{
				"ENV":           "production",
				"CLIENT_ID":     clientID,
				"PORT":          authzPortNumber,
				"DATABASE_TYPE": "postgres",
				"DATABASE_NAME": authzDatabase,
				"DATABASE_URL":  authzDbConnection,
				"ADMIN_SECRET":  envOr("AUTHZ_ADMIN_SECRET", GeneratePassword()),
				"ROLES":         "user,edit_member,edit_udvalg",
				"DEFAULT_ROLES": "user",
				"LOG_LEVEL":     authzLogLevel,
			},
			WaitingFor: wait.ForLog("Authorizer running at PORT:").WithStartupTimeout(30 * time.Second),
			Networks:   []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {authzNetworkAlias},
			},
		},
		Started: true,
	})
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to start Authorizer")
		return nil, err
	}
	testContainers.AuthorizerContainer = authorizerContainer

	authzHost, _ := authorizerContainer.Host(ctx)
	authzPort, _ := authorizerContainer.MappedPort(ctx, tcpAuthzPort)
	testContainers.AuthzURL = fmt.Sprintf("http://%s:%s", authzHost, authzPort.Port())
	testContainers.AuthzClientID = clientID
	logMessage(t, "AUTHZ_URL=%s", testContainers.AuthzURL)
	logMessage(t, "AUTHZ_CLIENT_ID=%s", clientID)

	logMessage(t, "meddb testcontainers started successfully")
	return testContainers, nil
}

// performPostgresDBInit waits for the server, creates the school directory table and,
// when Authorizer runs, its database.
func performPostgresDBInit(t *testing.T, dbc config.DBConfig, withAuthorizer bool, authzDatabase string) error {
	var (
		db  *gorm.DB
		err error
	)
	cfg := &config.Config{DB: dbc}
	for i := 0; i < 30; i++ {
		db, err = database.Connect(cfg, zap.NewNop())
		if err == nil {
			sqlDB, _ := db.DB()
			if err = sqlDB.Ping(); err == nil {
				break
			}
			_ = database.Close(db)
		}
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("postgres not ready after 30 seconds: %w", err)
	}
	defer database.Close(db)

	statements := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", SchoolSchema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s ("DQnummer" TEXT, "Navn" TEXT, "Mail" TEXT, "Skole" TEXT)`, SchoolTable),
	}
	if withAuthorizer {
		// CREATE DATABASE cannot run in a transaction; gorm Exec issues it directly.
		statements = append(statements, fmt.Sprintf("CREATE DATABASE %s", authzDatabase))
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%w : when executing > %s", err, stmt)
		}
	}
	logMessage(t, "Initialized %s and school table %s", dbc.Database, SchoolTable)
	return nil
}

// SchoolPerson is a row of the school directory fixture table.
type SchoolPerson struct {
	Username string
	Name     string
	Email    string
	School   string
}

// InsertSchoolPeople adds fixture rows to the school directory table.
func InsertSchoolPeople(t *testing.T, db *gorm.DB, people ...SchoolPerson) {
	t.Helper()
	for _, p := range people {
		err := db.Exec(
			fmt.Sprintf(`INSERT INTO %s ("DQnummer", "Navn", "Mail", "Skole") VALUES (?, ?, ?, ?)`, SchoolTable),
			p.Username, p.Name, p.Email, p.School,
		).Error
		if err != nil {
			t.Fatalf("Failed to insert school person %s: %v", p.Email, err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func exitWithError(t *testing.T, err error, msg string) {
	if t != nil {
		t.Fatalf(msg+": %v", err)
	} else {
		fmt.Printf(msg+": %v\n", err)
		os.Exit(1)
	}
}

func logMessage(t *testing.T, format string, args ...any) {
	if t != nil {
		t.Logf(format, args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}
