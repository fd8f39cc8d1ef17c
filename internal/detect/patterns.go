package detect

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tbckr/posture/internal/appdir"
)

//go:embed patterns.yaml
var embeddedPatterns []byte

// Rule maps a record value to a provider. Suffix matches a hostname on a label boundary;
// Contains matches a case-insensitive substring anywhere in the value. Exactly one is set.
type Rule struct {
	Suffix   string      `yaml:"suffix,omitempty"`
	Contains string      `yaml:"contains,omitempty"`
	Provider string      `yaml:"provider"`
	Type     ServiceType `yaml:"type,omitempty"`
}

func (r Rule) matches(value string) bool {
	if r.Contains != "" {
		return strings.Contains(strings.ToLower(value), strings.ToLower(r.Contains))
	}
	return matchSuffix(value, r.Suffix)
}

// Patterns holds the rule sets for MX hosts, NS hosts and TXT values.
type Patterns struct {
	Email []Rule `yaml:"email"`
	DNS   []Rule `yaml:"dns"`
	TXT   []Rule `yaml:"txt"`
}

func (p Patterns) validate() error {
	for section, rules := range map[string][]Rule{"email": p.Email, "dns": p.DNS, "txt": p.TXT} {
		for i, r := range rules {
			switch {
			case r.Provider == "":
				return fmt.Errorf("%s rule %d: provider is required", section, i)
			case (r.Suffix == "") == (r.Contains == ""):
				return fmt.Errorf("%s rule %d (%s): set exactly one of suffix or contains", section, i, r.Provider)
			}
		}
	}
	return nil
}

// LoadPatterns decodes the first of paths that exists, or the embedded patterns.yaml when
// none does. Unknown keys and incomplete rules are rejected.
func LoadPatterns(paths ...string) (Patterns, error) {
	data, src := embeddedPatterns, "embedded patterns"
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Patterns{}, fmt.Errorf("reading patterns file %q: %w", path, err)
		}
		data, src = b, path
		break
	}

	var p Patterns
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Patterns{}, fmt.Errorf("parsing %s: %w", src, err)
	}
	if err := p.validate(); err != nil {
		return Patterns{}, fmt.Errorf("%s: %w", src, err)
	}
	return p, nil
}

// DefaultPatternPaths returns the user override path under the config directory.
func DefaultPatternPaths() ([]string, error) {
	dir, err := appdir.ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	return []string{filepath.Join(dir, "detect.yaml")}, nil
}

// Default loads the override file when present, else the embedded patterns.
func Default() (*Detector, error) {
	paths, err := DefaultPatternPaths()
	if err != nil {
		paths = nil
	}
	p, err := LoadPatterns(paths...)
	if err != nil {
		return nil, err
	}
	return NewDetector(p), nil
}
