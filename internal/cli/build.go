package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pgxpack/pgxpack/internal/builder"
	"github.com/pgxpack/pgxpack/internal/config"
	"github.com/pgxpack/pgxpack/internal/version"
)

var (
	buildManifestPath string
	buildOutputDir    string
)

var buildCmd = &cobra.Command{
	Use:   "build [name,version,source-url ...]",
	Short: "Build extension packages without publishing",
	Long: `Build each requested extension into a Debian package and leave the artifact
on disk. The release host is never contacted, so neither a repository nor a
token needs to be configured. Use --output to copy packages out of the scratch
directory, which the next build of the same extension would wipe.`,
	Args: cobra.ArbitraryArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildManifestPath, "manifest", "m", "", "Read requests from an extensions.yaml manifest")
	buildCmd.Flags().StringVarP(&buildOutputDir, "output", "o", "", "Copy built packages into this directory")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	requests, parseFailures, err := gatherRequests(args, buildManifestPath)
	if err != nil {
		return err
	}
	if len(requests) == 0 && len(parseFailures) == 0 {
		fmt.Fprintln(out, "Nothing to build — pass name,version,source-url triples or --manifest.")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	recipes, err := loadRecipes(cfg)
	if err != nil {
		return err
	}

	bld := builder.New(builder.Config{
		PGMajor:     cfg.PGMajor,
		Arch:        cfg.Arch,
		ScratchRoot: cfg.ScratchDir,
		Jobs:        cfg.Jobs,
		PGConfig:    cfg.PGConfig,
	},
		builder.WithRecipes(recipes),
		builder.WithLogger(newLogger()),
	)

	failed := 0
	for _, res := range parseFailures {
		failed++
		fmt.Fprintf(out, "  ✗ %s: %v\n", res.Request.Name, res.Err)
	}

	for _, req := range requests {
		ver, err := version.Normalize(req.RawVersion)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  ✗ %s %s: %v\n", req.Name, req.RawVersion, err)
			continue
		}

		artifact, err := bld.Build(cmd.Context(), req.Name, ver, req.SourceURL)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  ✗ %s v%s: %v\n", req.Name, ver, err)
			continue
		}

		if buildOutputDir != "" {
			copied, err := copyArtifact(artifact, buildOutputDir)
			if err != nil {
				failed++
				fmt.Fprintf(out, "  ✗ %s v%s: %v\n", req.Name, ver, err)
				continue
			}
			artifact = copied
		}

		fmt.Fprintf(out, "  ✓ %s\n", artifact)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d build(s) failed", failed, len(requests)+len(parseFailures))
	}
	return nil
}

func copyArtifact(path, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	dest := filepath.Join(destDir, filepath.Base(path))

	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("copying %s: %w", filepath.Base(path), err)
	}
	return dest, nil
}
