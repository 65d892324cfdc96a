package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix = "PGXPACK"
	fileName  = "config"
	fileType  = "yaml"
)

// Config carries everything the pipeline needs from the outside world.
// It is populated once by Load and passed down explicitly; no other package
// reads the environment.
type Config struct {
	// Repo is the "owner/name" GitHub repository releases are published to.
	Repo string
	// Token is the bearer credential for the release host.
	Token string
	// APIBaseURL is the release host API root.
	APIBaseURL string
	// PGMajor is the PostgreSQL major version to build against.
	PGMajor int
	// Arch is the dpkg architecture packages are built for.
	Arch string
	// PGConfig optionally overrides the pg_config path derived from PGMajor.
	PGConfig string
	// ScratchDir is the root for per-build scratch directories.
	ScratchDir string
	// Jobs is the make parallelism.
	Jobs int
	// RecipesFile optionally extends the built-in build recipes.
	RecipesFile string
}

// Dir returns the path to the pgxpack config directory (~/.pgxpack/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".pgxpack")
	}
	return filepath.Join(home, ".pgxpack")
}

// FilePath returns the full path to the config file (~/.pgxpack/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// Load reads defaults, the optional config file, and PGXPACK_* environment
// variables (in increasing precedence) into a Config. The release token
// falls back to GITHUB_TOKEN when PGXPACK_TOKEN is unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(FilePath())
	v.SetConfigType(fileType)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("api_base_url", "https://api.github.com")
	v.SetDefault("pg_major", 17)
	v.SetDefault("arch", hostArch())
	v.SetDefault("scratch_dir", filepath.Join(os.TempDir(), "pgxpack"))
	v.SetDefault("jobs", runtime.NumCPU())

	// The config file is optional; environment alone is a valid setup.
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Repo:        v.GetString("repo"),
		Token:       v.GetString("token"),
		APIBaseURL:  v.GetString("api_base_url"),
		PGMajor:     v.GetInt("pg_major"),
		Arch:        v.GetString("arch"),
		PGConfig:    v.GetString("pg_config"),
		ScratchDir:  v.GetString("scratch_dir"),
		Jobs:        v.GetInt("jobs"),
		RecipesFile: v.GetString("recipes_file"),
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("GITHUB_TOKEN")
	}
	return cfg, nil
}

// fileKeys are the keys Set accepts. The release token deliberately stays out
// of the config file; it comes from PGXPACK_TOKEN or GITHUB_TOKEN only.
var fileKeys = []string{
	"repo",
	"api_base_url",
	"pg_major",
	"arch",
	"pg_config",
	"scratch_dir",
	"jobs",
	"recipes_file",
}

// Keys returns the config file keys Set accepts.
func Keys() []string {
	return slices.Clone(fileKeys)
}

// Set writes a key-value pair to the config file, creating it if needed.
func Set(key, value string) error {
	if !slices.Contains(fileKeys, key) {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(fileKeys, ", "))
	}

	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(FilePath())
	v.SetConfigType(fileType)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading config file: %w", err)
	}

	v.Set(key, value)
	if err := v.WriteConfigAs(FilePath()); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Value returns the resolved value for one config file key.
func (c *Config) Value(key string) (string, error) {
	switch key {
	case "repo":
		return c.Repo, nil
	case "api_base_url":
		return c.APIBaseURL, nil
	case "pg_major":
		return strconv.Itoa(c.PGMajor), nil
	case "arch":
		return c.Arch, nil
	case "pg_config":
		return c.PGConfig, nil
	case "scratch_dir":
		return c.ScratchDir, nil
	case "jobs":
		return strconv.Itoa(c.Jobs), nil
	case "recipes_file":
		return c.RecipesFile, nil
	default:
		return "", fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(fileKeys, ", "))
	}
}

var repoPattern = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)

// Validate checks the build-side settings every command needs.
func (c *Config) Validate() error {
	if c.PGMajor < 9 {
		return fmt.Errorf("pg_major %d is not a supported PostgreSQL major version", c.PGMajor)
	}
	if c.Arch == "" {
		return fmt.Errorf("arch must be set")
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	return nil
}

// ValidatePublish checks the settings publishing additionally needs.
func (c *Config) ValidatePublish() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !repoPattern.MatchString(c.Repo) {
		return fmt.Errorf("repo %q must be in owner/name form (set PGXPACK_REPO)", c.Repo)
	}
	if c.Token == "" {
		return fmt.Errorf("release token not set (set PGXPACK_TOKEN or GITHUB_TOKEN)")
	}
	return nil
}

// hostArch maps the Go architecture to the dpkg name used in package files.
func hostArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "amd64"
	case "arm64":
		return "arm64"
	case "386":
		return "i386"
	case "arm":
		return "armhf"
	default:
		return runtime.GOARCH
	}
}
