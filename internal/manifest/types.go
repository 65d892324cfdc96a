package manifest

// DefaultFile is the manifest filename pgxpack looks for when --manifest is
// given without a value.
const DefaultFile = "extensions.yaml"

// Manifest is the parsed form of an extensions.yaml file.
type Manifest struct {
	Extensions []Entry `yaml:"extensions" json:"extensions"`
}

// Entry describes one extension to build and publish.
type Entry struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
	Source  string `yaml:"source" json:"source"`
}
