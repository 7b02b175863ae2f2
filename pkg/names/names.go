// Package names maps between canonical workflow base names, environment
// qualified display names, and filesystem-safe file names.
package names

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

var (
	// ErrUnknownEnvironment indicates a lookup for an environment with no
	// configured suffix.
	ErrUnknownEnvironment = errors.New("unknown environment")

	// ErrOverlappingSuffixes indicates a suffix table where one suffix is a
	// string suffix of another, which would make reverse lookup ambiguous.
	ErrOverlappingSuffixes = errors.New("overlapping environment suffixes")
)

// UnmatchedMode selects the fallback for display names matching no configured
// suffix. The two observed legacy behaviors diverge, so the choice is explicit.
type UnmatchedMode string

const (
	UnmatchedUnknown    UnmatchedMode = "unknown"
	UnmatchedDefaultDev UnmatchedMode = "defaultDev"
)

// DefaultSuffixes is the standard two-environment suffix table.
func DefaultSuffixes() map[models.Environment]string {
	return map[models.Environment]string{
		models.EnvironmentDev:  "-dev",
		models.EnvironmentProd: "-prod",
	}
}

// Codec performs suffix-based name mapping for a fixed, validated suffix
// table. A Codec is immutable after construction.
type Codec struct {
	suffixes  map[models.Environment]string
	unmatched UnmatchedMode
}

// NewCodec validates the suffix table and builds a codec. Suffixes must be
// non-empty and mutually non-overlapping as string suffixes so that reverse
// lookup is unambiguous.
func NewCodec(suffixes map[models.Environment]string, unmatched UnmatchedMode) (*Codec, error) {
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes()
	}

	for env, suffix := range suffixes {
		if suffix == "" {
			return nil, fmt.Errorf("environment %q: empty suffix: %w", env, ErrOverlappingSuffixes)
		}

		for other, otherSuffix := range suffixes {
			if env != other && strings.HasSuffix(otherSuffix, suffix) {
				return nil, fmt.Errorf("suffix %q (%s) is a suffix of %q (%s): %w",
					suffix, env, otherSuffix, other, ErrOverlappingSuffixes)
			}
		}
	}

	if unmatched == "" {
		unmatched = UnmatchedUnknown
	}

	copied := make(map[models.Environment]string, len(suffixes))
	for env, suffix := range suffixes {
		copied[env] = suffix
	}

	return &Codec{suffixes: copied, unmatched: unmatched}, nil
}

// SuffixFor returns the display-name suffix for an environment.
func (c *Codec) SuffixFor(env models.Environment) (string, error) {
	suffix, ok := c.suffixes[env]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEnvironment, env)
	}

	return suffix, nil
}

// DisplayName renders a base name into the given environment's display name.
func (c *Codec) DisplayName(baseName string, env models.Environment) (string, error) {
	suffix, err := c.SuffixFor(env)
	if err != nil {
		return "", err
	}

	return baseName + suffix, nil
}

// BaseName strips the longest matching configured suffix. Names matching no
// suffix are returned unchanged and treated as unmanaged.
func (c *Codec) BaseName(displayName string) string {
	longest := ""

	for _, suffix := range c.suffixes {
		if strings.HasSuffix(displayName, suffix) && len(suffix) > len(longest) {
			longest = suffix
		}
	}

	return strings.TrimSuffix(displayName, longest)
}

// EnvironmentOf reports which environment a display name belongs to. Names
// matching no configured suffix resolve according to the codec's unmatched
// mode.
func (c *Codec) EnvironmentOf(displayName string) models.Environment {
	match := models.EnvironmentUnknown
	longest := ""

	for env, suffix := range c.suffixes {
		if strings.HasSuffix(displayName, suffix) && len(suffix) > len(longest) {
			match = env
			longest = suffix
		}
	}

	if match == models.EnvironmentUnknown && c.unmatched == UnmatchedDefaultDev {
		return models.EnvironmentDev
	}

	return match
}

var (
	disallowedChars = regexp.MustCompile(`[^A-Za-z0-9_\s-]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
)

// FileName derives the on-disk file name for a display name: strip the
// environment suffix, drop disallowed characters, collapse whitespace runs to
// single underscores, lowercase, append ".json".
//
// Distinct base names can normalize to the same file name ("Order Sync" and
// "order_sync" both yield "order_sync.json") and silently overwrite each other
// on export. This is a known hazard of the scheme, not auto-detected.
func (c *Codec) FileName(displayName string) string {
	name := c.BaseName(displayName)
	name = disallowedChars.ReplaceAllString(name, "")
	name = whitespaceRuns.ReplaceAllString(name, "_")

	return strings.ToLower(name) + ".json"
}

// GitSafeName is the file name without its extension, used to scope Git tags
// per base name.
func (c *Codec) GitSafeName(baseName string) string {
	return strings.TrimSuffix(c.FileName(baseName), ".json")
}
