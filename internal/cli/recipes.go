package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pgxpack/pgxpack/internal/config"
	"github.com/pgxpack/pgxpack/internal/recipe"
)

var recipesJSON bool

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "List known build recipes",
	Long: `List the build recipes pgxpack knows about, including any loaded from the
configured recipes file. Extensions without a recipe build with a plain make.`,
	RunE: runRecipes,
}

func init() {
	recipesCmd.Flags().BoolVar(&recipesJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(recipesCmd)
}

func runRecipes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	table, err := loadRecipes(cfg)
	if err != nil {
		return err
	}

	recipes := make([]recipe.Recipe, 0, len(table.Names()))
	for _, name := range table.Names() {
		recipes = append(recipes, table.Lookup(name))
	}

	if recipesJSON {
		data, err := json.MarshalIndent(recipes, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tVARIANT\tCONFIGURE ARGS\tMAKE ARGS")
	for _, rec := range recipes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.Name, rec.Variant, dashIfEmpty(rec.ConfigureArgs), dashIfEmpty(rec.MakeArgs))
	}
	return w.Flush()
}

func dashIfEmpty(args []string) string {
	if len(args) == 0 {
		return "-"
	}
	return strings.Join(args, " ")
}
