package main

import (
	"context"
	"fmt"
	"path"

	"dagger/plans/internal/dagger"
)

// bucket is an S3-compatible store for release binaries.
type bucket struct {
	endpoint        *dagger.Secret
	name            *dagger.Secret
	accessKeyID     *dagger.Secret
	secretAccessKey *dagger.Secret
}

// checksummed adds a SHA256SUMS file to each platform directory of artifacts.
func checksummed(artifacts *dagger.Directory) *dagger.Directory {
	return dag.Container().
		From("debian:bookworm-slim").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts").
		WithExec([]string{"sh", "-c",
			`for d in linux/*; do (cd "$d" && sha256sum plans plansapi plansprojector > SHA256SUMS); done`,
		}).
		Directory("/artifacts")
}

// sync copies artifacts into the bucket under each prefix in turn.
func (b *bucket) sync(ctx context.Context, artifacts *dagger.Directory, prefixes ...string) error {
	name, err := b.name.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket name: %w", err)
	}
	endpoint, err := b.endpoint.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket endpoint: %w", err)
	}

	cli := dag.Container().
		From("amazon/aws-cli:latest").
		WithSecretVariable("AWS_ACCESS_KEY_ID", b.accessKeyID).
		WithSecretVariable("AWS_SECRET_ACCESS_KEY", b.secretAccessKey).
		WithEnvVariable("AWS_DEFAULT_REGION", "auto").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts")

	for _, prefix := range prefixes {
		dest := "s3://" + path.Join(name, "plans", prefix)
		cli = cli.WithExec([]string{"aws", "s3", "sync", ".", dest, "--endpoint-url", endpoint, "--delete"})
	}
	if _, err := cli.Sync(ctx); err != nil {
		return fmt.Errorf("uploading to %v: %w", prefixes, err)
	}
	return nil
}

// Release builds the plans, plansapi and plansprojector binaries with
// checksums, uploads them under the version and "latest" prefixes, and pushes
// the runtime image tagged with the version. Returns the image reference.
func (p *Plans) Release(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	// Image repository, e.g. "ghcr.io/papercomputeco/plans"
	repository string,

	// Registry username
	registryUser string,

	// Registry password or token
	registryPassword *dagger.Secret,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyID *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (string, error) {
	b := &bucket{endpoint: endpoint, name: bucketName, accessKeyID: accessKeyID, secretAccessKey: secretAccessKey}

	artifacts := checksummed(p.BuildRelease(ctx, version, commit))
	if err := b.sync(ctx, artifacts, version, "latest"); err != nil {
		return "", err
	}

	ref, err := p.Image(ctx, version).
		WithLabel("org.opencontainers.image.version", version).
		WithLabel("org.opencontainers.image.revision", commit).
		WithRegistryAuth(repository, registryUser, registryPassword).
		Publish(ctx, repository+":"+version)
	if err != nil {
		return "", fmt.Errorf("publishing image: %w", err)
	}
	return ref, nil
}

// Nightly builds checksummed binaries from commit and uploads them under the
// "nightly" prefix, replacing the previous nightly.
func (p *Plans) Nightly(
	ctx context.Context,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyID *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	b := &bucket{endpoint: endpoint, name: bucketName, accessKeyID: accessKeyID, secretAccessKey: secretAccessKey}

	artifacts := checksummed(p.BuildRelease(ctx, "nightly", commit))
	return artifacts, b.sync(ctx, artifacts, "nightly")
}
