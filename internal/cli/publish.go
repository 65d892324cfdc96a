package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgxpack/pgxpack/internal/builder"
	"github.com/pgxpack/pgxpack/internal/config"
	"github.com/pgxpack/pgxpack/internal/manifest"
	"github.com/pgxpack/pgxpack/internal/pipeline"
	"github.com/pgxpack/pgxpack/internal/recipe"
	"github.com/pgxpack/pgxpack/internal/release"
)

var (
	publishManifestPath string
	publishYes          bool
)

var publishCmd = &cobra.Command{
	Use:   "publish [name,version,source-url ...]",
	Short: "Build extensions and publish them as release assets",
	Long: `Build each requested extension into a Debian package and upload it as a
GitHub release asset.

Requests are name,version,source-url triples passed as arguments, or read from
an extensions.yaml manifest with --manifest. Extensions whose release tag
already exists on the target repository are skipped. A failure in one request
does not stop the others.`,
	Args: cobra.ArbitraryArgs,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVarP(&publishManifestPath, "manifest", "m", "", "Read requests from an extensions.yaml manifest")
	publishCmd.Flags().BoolVarP(&publishYes, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	requests, parseFailures, err := gatherRequests(args, publishManifestPath)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		if len(parseFailures) > 0 {
			return printResults(out, parseFailures)
		}
		fmt.Fprintln(out, "Nothing to publish — pass name,version,source-url triples or --manifest.")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.ValidatePublish(); err != nil {
		return err
	}

	recipes, err := loadRecipes(cfg)
	if err != nil {
		return err
	}

	logger := newLogger()
	client := release.NewClient(cfg.Repo,
		release.WithToken(cfg.Token),
		release.WithBaseURL(cfg.APIBaseURL),
	)
	bld := builder.New(builder.Config{
		PGMajor:     cfg.PGMajor,
		Arch:        cfg.Arch,
		ScratchRoot: cfg.ScratchDir,
		Jobs:        cfg.Jobs,
		PGConfig:    cfg.PGConfig,
	},
		builder.WithRecipes(recipes),
		builder.WithLogger(logger),
	)
	p := pipeline.New(client, bld, client, pipeline.WithLogger(logger))

	// Print plan.
	fmt.Fprintf(out, "Publishing %d extension(s) to %s (PostgreSQL %d, %s):\n",
		len(requests), cfg.Repo, cfg.PGMajor, cfg.Arch)
	for _, req := range requests {
		fmt.Fprintf(out, "  - %s %s\n", req.Name, req.RawVersion)
	}

	// Prompt for confirmation unless -y is set.
	if !publishYes && !confirm(out, "? Proceed with publish? (Y/n) ") {
		fmt.Fprintln(out, "Publish cancelled.")
		return nil
	}

	fmt.Fprintln(out, "Building...")
	results := p.Run(cmd.Context(), requests)
	return printResults(out, append(parseFailures, results...))
}

// printResults renders one line per request plus a closing summary. It returns
// an error when any request failed so the process exits non-zero.
func printResults(out io.Writer, results []pipeline.Result) error {
	var published, skipped, failed int

	for _, res := range results {
		switch {
		case res.Failed():
			failed++
			label := res.Request.Name
			if res.Request.RawVersion != "" {
				label += " " + res.Request.RawVersion
			}
			fmt.Fprintf(out, "  ✗ %s: %v\n", label, res.Err)
		case res.Skipped:
			skipped++
			fmt.Fprintf(out, "  - %s: already published, skipped\n", res.Tag)
		default:
			published++
			fmt.Fprintf(out, "  ✓ %s -> %s\n", res.Tag, res.URL)
		}
	}

	// Print summary.
	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Published %d release(s).", published)
	if skipped > 0 {
		fmt.Fprintf(out, " %d already published (skipped).", skipped)
	}
	if failed > 0 {
		fmt.Fprintf(out, " %d failed.", failed)
	}
	fmt.Fprintln(out)

	if failed > 0 {
		return fmt.Errorf("%d of %d request(s) failed", failed, len(results))
	}
	return nil
}

// gatherRequests merges positional triples with manifest entries. A malformed
// triple fails only its own argument, the same isolation build and publish
// failures get; a broken manifest fails the whole invocation.
func gatherRequests(args []string, manifestPath string) ([]pipeline.Request, []pipeline.Result, error) {
	var requests []pipeline.Request
	var failures []pipeline.Result

	for _, arg := range args {
		req, err := pipeline.ParseRequest(arg)
		if err != nil {
			failures = append(failures, pipeline.Result{
				Request: pipeline.Request{Name: arg},
				Err:     err,
			})
			continue
		}
		requests = append(requests, req)
	}

	if manifestPath != "" {
		fromManifest, err := manifestRequests(manifestPath)
		if err != nil {
			return nil, nil, err
		}
		requests = append(requests, fromManifest...)
	}

	return requests, failures, nil
}

// manifestRequests validates the manifest against its schema before
// converting entries, so typos fail up front instead of mid-batch.
func manifestRequests(path string) ([]pipeline.Request, error) {
	result, err := manifest.ValidateFile(path)
	if err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	if !result.Valid {
		var b strings.Builder
		fmt.Fprintf(&b, "manifest %s has %d validation issue(s):", path, len(result.Issues))
		for _, issue := range result.Issues {
			if issue.Path != "" {
				fmt.Fprintf(&b, "\n  - %s: %s", issue.Path, issue.Message)
			} else {
				fmt.Fprintf(&b, "\n  - %s", issue.Message)
			}
		}
		return nil, fmt.Errorf("%s", b.String())
	}

	m, err := manifest.ParseFile(path)
	if err != nil {
		return nil, err
	}

	requests := make([]pipeline.Request, 0, len(m.Extensions))
	for _, e := range m.Extensions {
		requests = append(requests, pipeline.Request{
			Name:       e.Name,
			RawVersion: e.Version,
			SourceURL:  e.Source,
		})
	}
	return requests, nil
}

// loadRecipes returns the built-in recipe table, extended by the user's
// recipes file when one is configured.
func loadRecipes(cfg *config.Config) (*recipe.Table, error) {
	if cfg.RecipesFile == "" {
		return recipe.Builtin(), nil
	}
	table, err := recipe.Load(cfg.RecipesFile)
	if err != nil {
		return nil, fmt.Errorf("loading recipes: %w", err)
	}
	return table, nil
}

func confirm(out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return true
	}
	answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
	return answer == "" || answer == "y" || answer == "yes"
}
