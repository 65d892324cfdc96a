// Package recipe maps extension names to build variants. The built-in table
// is baked into the binary from recipes.yaml; a user-supplied recipes file
// can add or override entries, so supporting a new extension is a data edit
// rather than a code change.
package recipe

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed recipes.yaml
var rawRecipes []byte

// Variant selects how an extension's source tree is prepared and built.
type Variant string

const (
	// VariantPlain runs make against pg_config with no preparation.
	VariantPlain Variant = "plain"
	// VariantPortable is plain with hardware-specific optimization flags
	// suppressed (OPTFLAGS emptied), so the package runs on any machine
	// of the target architecture.
	VariantPortable Variant = "portable"
	// VariantAutotools bootstraps with autogen.sh and runs configure
	// before the build.
	VariantAutotools Variant = "autotools"
	// VariantCMake generates build files into a build/ subdirectory and
	// builds there.
	VariantCMake Variant = "cmake"
)

func (v Variant) valid() bool {
	switch v {
	case VariantPlain, VariantPortable, VariantAutotools, VariantCMake:
		return true
	}
	return false
}

// Recipe describes how one extension builds.
type Recipe struct {
	Name          string   `yaml:"name" json:"name"`
	Variant       Variant  `yaml:"variant" json:"variant"`
	ConfigureArgs []string `yaml:"configure_args" json:"configure_args,omitempty"`
	MakeArgs      []string `yaml:"make_args" json:"make_args,omitempty"`
}

// Table resolves extension names to recipes.
type Table struct {
	recipes map[string]Recipe
}

type recipeFile struct {
	Recipes []Recipe `yaml:"recipes"`
}

var (
	once     sync.Once
	builtins map[string]Recipe
)

func loadBuiltins() {
	once.Do(func() {
		builtins = map[string]Recipe{}
		var f recipeFile
		// Unknown extensions fall back to the plain variant, so an empty
		// or unreadable embedded table degrades to plain builds.
		_ = yaml.Unmarshal(rawRecipes, &f)
		for _, r := range f.Recipes {
			builtins[r.Name] = r
		}
	})
}

// Builtin returns the table baked into the binary.
func Builtin() *Table {
	loadBuiltins()
	recipes := make(map[string]Recipe, len(builtins))
	for name, r := range builtins {
		recipes[name] = r
	}
	return &Table{recipes: recipes}
}

// Load returns the built-in table overlaid with entries from a user recipes
// file. Entries with the same name replace the built-in one.
func Load(path string) (*Table, error) {
	t := Builtin()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipes %s: %w", path, err)
	}
	var f recipeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing recipes %s: %w", path, err)
	}

	for _, r := range f.Recipes {
		if r.Name == "" {
			return nil, fmt.Errorf("recipes %s: entry with empty name", path)
		}
		if r.Variant == "" {
			r.Variant = VariantPlain
		}
		if !r.Variant.valid() {
			return nil, fmt.Errorf("recipes %s: %s: unknown variant %q", path, r.Name, r.Variant)
		}
		t.recipes[r.Name] = r
	}
	return t, nil
}

// Lookup returns the recipe for an extension. Unknown extensions get the
// plain variant.
func (t *Table) Lookup(name string) Recipe {
	if r, ok := t.recipes[name]; ok {
		return r
	}
	return Recipe{Name: name, Variant: VariantPlain}
}

// Names returns the extensions with explicit entries, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.recipes))
	for name := range t.recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
