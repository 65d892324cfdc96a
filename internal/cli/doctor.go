package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/pgxpack/pgxpack/internal/builder"
	"github.com/pgxpack/pgxpack/internal/config"
	"github.com/pgxpack/pgxpack/internal/manifest"
)

var checkManifestPath string

func init() {
	doctorCmd.Flags().StringVar(&checkManifestPath, "check-manifest", "", "Validate a manifest file at the given path")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Health check for the build environment",
	Long: `Run diagnostic checks on the host toolchain, the PostgreSQL development
files, and the pgxpack configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkManifestPath != "" {
			return runManifestCheck(checkManifestPath)
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		runToolchainCheck()
		runPostgresCheck(cfg)
		runConfigCheck(cfg)
		return nil
	},
}

func runToolchainCheck() {
	fmt.Println("Toolchain check:")
	checkBinary("make", true)
	checkBinary("gcc", true)
	checkBinary("checkinstall", true)
	// Only needed by autotools and cmake recipes.
	checkBinary("autoconf", false)
	checkBinary("cmake", false)
}

func checkBinary(name string, required bool) {
	path, err := exec.LookPath(name)
	if err != nil {
		if required {
			fmt.Printf("  [MISS] %s not found\n", name)
		} else {
			fmt.Printf("  [WARN] %s not found (needed by some recipes)\n", name)
		}
		return
	}
	fmt.Printf("  [ OK ] %s found at %s\n", name, path)
}

func runPostgresCheck(cfg *config.Config) {
	fmt.Println("PostgreSQL check:")

	pgConfig := cfg.PGConfig
	if pgConfig == "" {
		pgConfig = builder.DefaultPGConfigPath(cfg.PGMajor)
	}
	if _, err := os.Stat(pgConfig); err != nil {
		fmt.Printf("  [MISS] pg_config not found at %s (install postgresql-server-dev-%d)\n", pgConfig, cfg.PGMajor)
		return
	}
	fmt.Printf("  [ OK ] pg_config found at %s\n", pgConfig)
}

func runConfigCheck(cfg *config.Config) {
	fmt.Println("Config check:")

	if err := cfg.Validate(); err != nil {
		fmt.Printf("  [FAIL] %v\n", err)
		return
	}
	fmt.Printf("  [ OK ] building for PostgreSQL %d on %s\n", cfg.PGMajor, cfg.Arch)

	if cfg.RecipesFile != "" {
		table, err := loadRecipes(cfg)
		if err != nil {
			fmt.Printf("  [FAIL] %v\n", err)
		} else {
			fmt.Printf("  [ OK ] %d build recipe(s) loaded from %s\n", len(table.Names()), cfg.RecipesFile)
		}
	}

	if err := cfg.ValidatePublish(); err != nil {
		fmt.Printf("  [WARN] publishing not configured: %v\n", err)
		return
	}
	fmt.Printf("  [ OK ] publishing to %s\n", cfg.Repo)
}

func runManifestCheck(path string) error {
	fmt.Printf("Manifest validation: %s\n", path)

	// Validate against JSON Schema.
	result, err := manifest.ValidateFile(path)
	if err != nil {
		fmt.Printf("  [FAIL] %v\n", err)
		return fmt.Errorf("manifest validation failed: %w", err)
	}

	if result.Valid {
		m, err := manifest.ParseFile(path)
		if err != nil {
			fmt.Printf("  [ OK ] Valid manifest\n")
			return nil
		}
		fmt.Printf("  [ OK ] Valid manifest: %d extension(s)\n", len(m.Extensions))
		return nil
	}

	// Report validation issues.
	fmt.Printf("  [FAIL] %d validation issue(s):\n", len(result.Issues))
	for _, issue := range result.Issues {
		if issue.Path != "" {
			fmt.Printf("    - %s: %s\n", issue.Path, issue.Message)
		} else {
			fmt.Printf("    - %s\n", issue.Message)
		}
	}
	return fmt.Errorf("manifest %s has %d validation issue(s)", path, len(result.Issues))
}
