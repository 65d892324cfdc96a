package cli

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

var rootCmd = &cobra.Command{
	Use:   "pgxpack",
	Short: "Build and publish Debian packages for PostgreSQL extensions",
	Long: `pgxpack turns PostgreSQL extension source releases into installable .deb
packages and publishes them as GitHub release assets. Upstream version strings
are normalized to semver, already-published releases are skipped, and every
extension builds in a fresh scratch directory against the configured
PostgreSQL major version.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	return rootCmd.Execute()
}

// newLogger builds the logger handed to the build and publish machinery.
func newLogger() *log.Logger {
	logger := log.New(os.Stderr)
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}
