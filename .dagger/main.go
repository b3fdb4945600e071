// Substream CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/substream/internal/dagger"
)

// Substream is the main module for the substream CI/CD pipeline
type Substream struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Substream CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Substream {
	return &Substream{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with gcc,
// libsqlite3-dev, CGO enabled, and the project source mounted.
// go-sqlite3 needs CGO, so tests and builds share it.
func (s *Substream) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", s.Source)
}

// postgres returns a throwaway PostgreSQL service for the storage specs.
func (s *Substream) postgres() *dagger.Service {
	return dag.Container().
		From("postgres:17-alpine").
		WithEnvVariable("POSTGRES_USER", "substream").
		WithEnvVariable("POSTGRES_PASSWORD", "substream").
		WithEnvVariable("POSTGRES_DB", "substream").
		WithExposedPort(5432).
		AsService()
}

// Test runs the substream unit tests via "go test", with the PostgreSQL
// driver specs enabled against a service container.
//
// +check
func (s *Substream) Test(ctx context.Context) (string, error) {
	return s.goContainer().
		WithServiceBinding("db", s.postgres()).
		WithEnvVariable("SUBSTREAM_TEST_POSTGRES_DSN", "postgres://substream:substream@db:5432/substream?sslmode=disable").
		WithExec([]string{"go", "test", "-race", "-v", "./..."}).
		Stdout(ctx)
}
