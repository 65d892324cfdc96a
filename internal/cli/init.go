package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgxpack/pgxpack/internal/manifest"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing manifest")
	rootCmd.AddCommand(initCmd)
}

// starterManifest pins one extension as a working example.
const starterManifest = `# Extensions built and published by pgxpack.
#
# name:    extension name, used as the package prefix and release tag
# version: upstream release tag or version string (normalized to MAJOR.MINOR.PATCH)
# source:  tar.gz source archive for that release
extensions:
  - name: pgvector
    version: v0.5.1
    source: https://github.com/pgvector/pgvector/archive/refs/tags/v0.5.1.tar.gz
`

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter extensions.yaml",
	Long: `Write a starter extensions.yaml manifest in the current directory (or at the
given path). Edit it to pin the extensions, versions, and source archives you
build, then run 'pgxpack publish --manifest extensions.yaml'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := manifest.DefaultFile
		if len(args) > 0 {
			path = args[0]
		}

		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := os.WriteFile(path, []byte(starterManifest), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s. Edit it, then run 'pgxpack publish --manifest %s'.\n", path, path)
		return nil
	},
}
