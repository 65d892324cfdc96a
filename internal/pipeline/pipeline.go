// Package pipeline sequences the build-and-publish run: for every requested
// extension it normalizes the version, asks the release host whether the tag
// is already published, and only then builds and publishes. Requests are
// independent; one failure never stops the rest of the batch.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/pgxpack/pgxpack/internal/release"
	"github.com/pgxpack/pgxpack/internal/version"
)

// Checker answers whether a release tag is already published.
type Checker interface {
	Exists(ctx context.Context, tag string) (bool, error)
}

// ArtifactBuilder builds one extension and returns the artifact path.
type ArtifactBuilder interface {
	Build(ctx context.Context, name string, ver *semver.Version, sourceURL string) (string, error)
}

// Publisher creates a release and attaches the artifact to it.
type Publisher interface {
	Publish(ctx context.Context, rel release.Release, artifactPath string) (*release.CreatedRelease, error)
}

// Result is the outcome of one request.
type Result struct {
	Request  Request
	Tag      string
	Artifact string
	URL      string
	Skipped  bool
	Err      error
}

// Failed reports whether the request errored.
func (r Result) Failed() bool { return r.Err != nil }

// Pipeline runs requests against a checker, a builder, and a publisher.
type Pipeline struct {
	checker   Checker
	builder   ArtifactBuilder
	publisher Publisher
	logger    *log.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for run progress.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a Pipeline.
func New(checker Checker, builder ArtifactBuilder, publisher Publisher, opts ...Option) *Pipeline {
	p := &Pipeline{
		checker:   checker,
		builder:   builder,
		publisher: publisher,
		logger:    log.New(os.Stderr),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes the requests in order and returns one Result per request.
// Builds saturate the machine on their own, so requests are not raced
// against each other.
func (p *Pipeline) Run(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, p.process(ctx, req))
	}
	return results
}

func (p *Pipeline) process(ctx context.Context, req Request) Result {
	res := Result{Request: req}

	ver, err := version.Normalize(req.RawVersion)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", req.Name, err)
		return res
	}
	res.Tag = version.Tag(req.Name, ver)

	exists, err := p.checker.Exists(ctx, res.Tag)
	if err != nil {
		// The host is the system of record, but an unreachable host must
		// not wedge the run; worst case a duplicate tag fails the create.
		p.logger.Warn("existence check failed, proceeding with build", "tag", res.Tag, "err", err)
	}
	if exists {
		p.logger.Info("release already published, skipping", "tag", res.Tag)
		res.Skipped = true
		return res
	}

	artifact, err := p.builder.Build(ctx, req.Name, ver, req.SourceURL)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", req.Name, err)
		return res
	}
	res.Artifact = artifact

	rel := release.Release{
		TagName: res.Tag,
		Name:    fmt.Sprintf("%s v%s", req.Name, ver),
		Body:    fmt.Sprintf("Prebuilt PostgreSQL extension package for %s %s.", req.Name, ver),
	}
	created, err := p.publisher.Publish(ctx, rel, artifact)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", req.Name, err)
		return res
	}
	if created != nil {
		res.URL = created.HTMLURL
	}
	p.logger.Info("published", "tag", res.Tag, "asset", filepath.Base(artifact))
	return res
}
