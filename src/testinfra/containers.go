//go:build integration

// Package testinfra starts throwaway backend containers for integration tests.
// Run with: go test -tags integration ./...
package testinfra

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PgVectorImage = "pgvector/pgvector:pg16"
	QdrantImage   = "qdrant/qdrant:v1.12.4"
	Neo4jImage    = "neo4j:5.26-community"

	pgPassword    = "prefs"
	neo4jPassword = "prefs-test-password"
)

// SkipIfNoDocker skips the test when no Docker daemon answers.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func start(t *testing.T, req testcontainers.ContainerRequest) (testcontainers.Container, string) {
	t.Helper()
	SkipIfNoDocker(t)
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	return container, host
}

func fail(t *testing.T, what string, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}

// PgVector returns a DSN for a Postgres server with the vector extension available.
func PgVector(t *testing.T) string {
	c, host := start(t, testcontainers.ContainerRequest{
		Image:        PgVectorImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       "prefs",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	})
	port, err := c.MappedPort(context.Background(), "5432/tcp")
	fail(t, "mapped port", err)
	return fmt.Sprintf("postgres://postgres:%s@%s:%s/prefs?sslmode=disable", pgPassword, host, port.Port())
}

// Qdrant returns the REST base URL of a fresh Qdrant server.
func Qdrant(t *testing.T) string {
	c, host := start(t, testcontainers.ContainerRequest{
		Image:        QdrantImage,
		ExposedPorts: []string{"6333/tcp"},
		WaitingFor: wait.ForHTTP("/readyz").
			WithPort("6333/tcp").
			WithStartupTimeout(90 * time.Second),
	})
	port, err := c.MappedPort(context.Background(), "6333/tcp")
	fail(t, "mapped port", err)
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

// Neo4j returns the bolt URI, user and password of a fresh Neo4j server.
func Neo4j(t *testing.T) (uri, user, password string) {
	c, host := start(t, testcontainers.ContainerRequest{
		Image:        Neo4jImage,
		ExposedPorts: []string{"7687/tcp"},
		Env:          map[string]string{"NEO4J_AUTH": "neo4j/" + neo4jPassword},
		WaitingFor:   wait.ForLog("Started.").WithStartupTimeout(120 * time.Second),
	})
	port, err := c.MappedPort(context.Background(), "7687/tcp")
	fail(t, "mapped port", err)
	return fmt.Sprintf("neo4j://%s:%s", host, port.Port()), "neo4j", neo4jPassword
}
