package builder

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/pgxpack/pgxpack/internal/recipe"
)

// Config carries the host-specific knobs a build needs. Values come from
// the CLI configuration; the builder never consults the environment itself.
type Config struct {
	// PGMajor is the PostgreSQL major version to build against.
	PGMajor int
	// Arch is the dpkg architecture of the produced package.
	Arch string
	// ScratchRoot is where per-build scratch directories are created.
	// Defaults to a pgxpack directory under the system temp dir.
	ScratchRoot string
	// Jobs is the make parallelism. Defaults to the CPU count.
	Jobs int
	// PGConfig overrides the resolved pg_config path.
	PGConfig string
}

// Builder produces Debian packages from extension source archives.
type Builder struct {
	pgMajor  int
	arch     string
	scratch  string
	jobs     int
	pgConfig string

	recipes    *recipe.Table
	runner     Runner
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithRunner substitutes the process runner (useful for testing).
func WithRunner(r Runner) Option {
	return func(b *Builder) {
		b.runner = r
	}
}

// WithHTTPClient sets the client used for source downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Builder) {
		b.httpClient = c
	}
}

// WithLogger sets the logger for build progress.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithRecipes substitutes the recipe table.
func WithRecipes(t *recipe.Table) Option {
	return func(b *Builder) {
		b.recipes = t
	}
}

// New creates a Builder for the given target configuration.
func New(cfg Config, opts ...Option) *Builder {
	b := &Builder{
		pgMajor:    cfg.PGMajor,
		arch:       cfg.Arch,
		scratch:    cfg.ScratchRoot,
		jobs:       cfg.Jobs,
		pgConfig:   cfg.PGConfig,
		recipes:    recipe.Builtin(),
		runner:     &ExecRunner{},
		httpClient: http.DefaultClient,
		logger:     log.New(os.Stderr),
	}
	if b.scratch == "" {
		b.scratch = filepath.Join(os.TempDir(), "pgxpack")
	}
	if b.jobs <= 0 {
		b.jobs = runtime.NumCPU()
	}
	if b.pgConfig == "" {
		b.pgConfig = DefaultPGConfigPath(cfg.PGMajor)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DefaultPGConfigPath returns the Debian toolchain path for a PostgreSQL
// major version.
func DefaultPGConfigPath(major int) string {
	return fmt.Sprintf("/usr/lib/postgresql/%d/bin/pg_config", major)
}

// ArtifactName returns the conventional package file name for an extension
// build, e.g. "pgvector-v0.5.1-pg15-amd64-linux-gnu.deb".
func ArtifactName(name string, v *semver.Version, pgMajor int, arch string) string {
	return fmt.Sprintf("%s-v%s-pg%d-%s-linux-gnu.deb", name, v, pgMajor, arch)
}

// Build downloads, compiles and packages one extension, returning the path
// of the produced .deb inside the build's scratch directory. The scratch
// directory is recreated from nothing on every call, so a failed earlier
// attempt never leaks into this one.
func (b *Builder) Build(ctx context.Context, name string, ver *semver.Version, sourceURL string) (string, error) {
	scratch := filepath.Join(b.scratch, fmt.Sprintf("%s-%s", name, ver))
	if err := os.RemoveAll(scratch); err != nil {
		return "", fmt.Errorf("clearing scratch directory: %w", err)
	}
	srcDir := filepath.Join(scratch, "src")
	pkgDir := filepath.Join(scratch, "pkg")
	for _, dir := range []string{srcDir, pkgDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating scratch directory: %w", err)
		}
	}

	b.logger.Info("downloading source", "extension", name, "version", ver, "url", sourceURL)
	archive := filepath.Join(scratch, "source.tar.gz")
	size, err := b.download(ctx, sourceURL, archive)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	b.logger.Debug("downloaded source", "extension", name, "bytes", size)

	if err := extractTarGz(archive, srcDir); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtract, err)
	}

	rec := b.recipes.Lookup(name)
	env := []string{"PG_CONFIG=" + b.pgConfig}

	buildDir, err := b.prepare(ctx, rec, srcDir, env)
	if err != nil {
		return "", err
	}

	b.logger.Info("building", "extension", name, "variant", rec.Variant, "jobs", b.jobs)
	makeArgs := []string{"-j" + strconv.Itoa(b.jobs), "PG_CONFIG=" + b.pgConfig}
	makeArgs = append(makeArgs, rec.MakeArgs...)
	if rec.Variant == recipe.VariantPortable {
		// Empty OPTFLAGS overrides Makefiles that default to
		// -march=native, which produces packages that crash on other
		// machines of the same architecture.
		makeArgs = append(makeArgs, "OPTFLAGS=")
	}
	if err := b.step(ctx, ErrBuild, "build", buildDir, env, "make", makeArgs...); err != nil {
		return "", err
	}

	b.logger.Info("packaging", "extension", name)
	artifact, err := b.pack(ctx, name, ver, buildDir, pkgDir, env)
	if err != nil {
		return "", err
	}
	b.logger.Info("packaged", "extension", name, "artifact", filepath.Base(artifact))
	return artifact, nil
}

// prepare runs the recipe's pre-build steps and returns the directory the
// build and packaging steps run in.
func (b *Builder) prepare(ctx context.Context, rec recipe.Recipe, srcDir string, env []string) (string, error) {
	switch rec.Variant {
	case recipe.VariantAutotools:
		if err := b.step(ctx, ErrBuild, "bootstrap", srcDir, env, "./autogen.sh"); err != nil {
			return "", err
		}
		if err := b.step(ctx, ErrBuild, "configure", srcDir, env, "./configure", rec.ConfigureArgs...); err != nil {
			return "", err
		}
		return srcDir, nil
	case recipe.VariantCMake:
		args := []string{"-S", ".", "-B", "build", "-DCMAKE_BUILD_TYPE=Release"}
		args = append(args, rec.ConfigureArgs...)
		if err := b.step(ctx, ErrBuild, "generate", srcDir, env, "cmake", args...); err != nil {
			return "", err
		}
		return filepath.Join(srcDir, "build"), nil
	default:
		return srcDir, nil
	}
}

// pack runs checkinstall in package-only mode and renames the resulting
// .deb to the conventional artifact name.
func (b *Builder) pack(ctx context.Context, name string, ver *semver.Version, buildDir, pkgDir string, env []string) (string, error) {
	args := []string{
		"--install=no",
		"--fstrans=yes",
		"--backup=no",
		"--nodoc",
		"-y",
		"--type=debian",
		"--pkgname=" + name,
		"--pkgversion=" + ver.String(),
		"--pkgrelease=pg" + strconv.Itoa(b.pgMajor),
		"--pkgarch=" + b.arch,
		"--pakdir=" + pkgDir,
		"make", "install",
	}
	if err := b.step(ctx, ErrPackaging, "package", buildDir, env, "checkinstall", args...); err != nil {
		return "", err
	}

	debs, err := filepath.Glob(filepath.Join(pkgDir, "*.deb"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPackaging, err)
	}
	if len(debs) != 1 {
		return "", fmt.Errorf("%w: expected one package in %s, found %d", ErrPackaging, pkgDir, len(debs))
	}

	artifact := filepath.Join(pkgDir, ArtifactName(name, ver, b.pgMajor, b.arch))
	if debs[0] != artifact {
		if err := os.Rename(debs[0], artifact); err != nil {
			return "", fmt.Errorf("%w: renaming package: %v", ErrPackaging, err)
		}
	}
	return artifact, nil
}

// step runs one toolchain command, classifying a failure under the given
// sentinel with its stage and exit code attached.
func (b *Builder) step(ctx context.Context, sentinel error, stage, dir string, env []string, name string, args ...string) error {
	b.logger.Debug("running", "stage", stage, "command", name+" "+strings.Join(args, " "))
	if err := b.runner.Run(ctx, dir, env, name, args...); err != nil {
		return fmt.Errorf("%w: %w", sentinel, &StepError{
			Stage:    stage,
			Command:  name,
			ExitCode: exitCode(err),
			Err:      err,
		})
	}
	return nil
}
