// Package version normalizes upstream release labels into canonical
// MAJOR.MINOR.PATCH versions and derives the release tags pgxpack publishes
// under. Upstream projects tag releases in incompatible shapes ("v0.5.1",
// "ver_1.4.8", "REL15_1_5_0"); everything downstream works on the canonical
// form only.
package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidFormat reports a raw version string with no recognizable
// MAJOR.MINOR.PATCH triple.
var ErrInvalidFormat = errors.New("invalid version format")

// The greedy optional prefix must end on a non-digit, which pins the capture
// to the rightmost triple in the string ("REL15_1_5_0" yields 1_5_0, not
// 15_1_5).
var (
	dottedTriple     = regexp.MustCompile(`^(?:.*\D)?(\d+)\.(\d+)\.(\d+)`)
	underscoreTriple = regexp.MustCompile(`^(?:.*\D)?(\d+)_(\d+)_(\d+)`)
)

// Normalize extracts the canonical version from a raw upstream label.
// Dotted triples win over underscore-delimited ones; components are parsed
// as base-10 integers, so leading zeros do not survive normalization.
// Returns ErrInvalidFormat when no triple is present.
func Normalize(raw string) (*semver.Version, error) {
	for _, re := range []*regexp.Regexp{dottedTriple, underscoreTriple} {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		parts := make([]uint64, 3)
		for i, s := range m[1:] {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: component %q in %q: %v", ErrInvalidFormat, s, raw, err)
			}
			parts[i] = n
		}
		return semver.New(parts[0], parts[1], parts[2], "", ""), nil
	}
	return nil, fmt.Errorf("%w: no version triple in %q", ErrInvalidFormat, raw)
}

// Tag returns the release tag for an extension at a canonical version,
// e.g. Tag("pgvector", 0.5.1) == "pgvector-v0.5.1". Tags are unique per
// (name, version) pair because the canonical form is deterministic.
func Tag(name string, v *semver.Version) string {
	return fmt.Sprintf("%s-v%s", name, v)
}
