package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/plans/internal/dagger"
)

var binaries = []string{"./cli/plans", "./cli/plansapi", "./cli/plansprojector"}

// Build and return directory of go binaries
func (p *Plans) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// CGO rules out cross compiling, so every platform builds natively.
	platforms := []dagger.Platform{"linux/amd64", "linux/arm64"}

	// create empty directory to put build artifacts
	outputs := dag.Directory()

	for _, platform := range platforms {
		path := string(platform) + "/"

		build := p.goContainer(platform)
		for _, bin := range binaries {
			build = build.WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, bin})
		}

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (p *Plans) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now().UTC().Format(time.RFC3339)

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/plans/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/plans/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/plans/pkg/utils.Buildtime=%s'", buildtime),
	}

	return p.Build(ctx, strings.Join(ldflags, " "))
}

// Image packages the linux/amd64 binaries into a runtime container that
// starts the API server and projector together.
func (p *Plans) Image(
	ctx context.Context,

	// Version string of build
	// +optional
	// +default="dev"
	version string,
) *dagger.Container {
	bins := p.BuildRelease(ctx, version, "HEAD").Directory("linux/amd64")

	return dag.Container().
		From("debian:bookworm-slim").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "ca-certificates", "libsqlite3-0"}).
		WithDirectory("/usr/local/bin", bins).
		WithWorkdir("/var/lib/plans").
		WithExposedPort(8081).
		WithEntrypoint([]string{"plans"}).
		WithDefaultArgs([]string{"serve"})
}
