package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/substream/internal/dagger"
)

// Build returns a directory holding the substream binary for the host
// platform. The binary links SQLite through CGO, so it is built natively.
func (s *Substream) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	return s.goContainer().
		WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", "/out/", "./cli/substream"}).
		Directory("/out")
}

// BuildRelease compiles a versioned release binary with embedded version info
func (s *Substream) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/substream/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/substream/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/substream/pkg/utils.Buildtime=%s'", time.Now().UTC().Format(time.RFC3339)),
	}

	return s.Build(ctx, strings.Join(ldflags, " "))
}
