package matrix

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// Spec is the declarative matrix configuration supplied to the harness. It
// lists the environments under test and, optionally, an explicit set of
// capability tuples; if Tuples is empty the full cross product of every
// environment pair and every capability advertised by either side is expanded.
type Spec struct {
	Environments []*Environment `yaml:"environments"`

	// Tuples restricts the matrix to the listed capability combinations.
	Tuples []Tuple `yaml:"tuples,omitempty"`
}

// Tuple is one transport/security/muxer combination in a Spec.
type Tuple struct {
	Transport Transport `yaml:"transport"`
	Security  Security  `yaml:"security"`
	Muxer     Muxer     `yaml:"muxer"`
}

// ParseSpec reads a matrix specification from YAML data.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("malformed matrix spec: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// ReadSpecFile reads and parses a matrix specification file.
func ReadSpecFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path) //nolint:gosec // the file path is intentionally a variable
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("error in %q: %w", path, err)
	}
	return spec, nil
}

func (s *Spec) validate() error {
	if len(s.Environments) == 0 {
		return fmt.Errorf("matrix spec declares no environments")
	}
	seen := make(map[string]bool)
	for _, env := range s.Environments {
		if env.Name == "" {
			return fmt.Errorf("environment with no name")
		}
		if seen[env.Name] {
			return fmt.Errorf("duplicate environment name %q", env.Name)
		}
		seen[env.Name] = true
		switch env.Kind {
		case KindNative:
			if env.Command == "" {
				return fmt.Errorf("native environment %q has no command", env.Name)
			}
		case KindBrowser:
			if env.AutomationURL == "" {
				return fmt.Errorf("browser environment %q has no automation URL", env.Name)
			}
		default:
			return fmt.Errorf("environment %q has unknown kind %q", env.Name, env.Kind)
		}
		if len(env.Capabilities.Transports) == 0 {
			return fmt.Errorf("environment %q advertises no transports", env.Name)
		}
	}
	return nil
}
