package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Spec describes one dataset in the manifest.
type Spec struct {
	Name          string `yaml:"name"`
	Source        string `yaml:"source"`
	TimeColumn    string `yaml:"time_column,omitempty"`
	TimeLayout    string `yaml:"time_layout,omitempty"`
	Location      string `yaml:"location,omitempty"`
	Sheet         string `yaml:"sheet,omitempty"`
	Delimiter     string `yaml:"delimiter,omitempty"`
	DefaultColumn string `yaml:"default_column,omitempty"`
}

// Manifest lists the datasets served by one process.
type Manifest struct {
	Datasets []Spec `yaml:"datasets"`
}

// LoadManifest reads and validates a manifest file. Relative local sources
// are resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ParseManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range m.Datasets {
		src := m.Datasets[i].Source
		if !strings.HasPrefix(src, "s3://") && !filepath.IsAbs(src) {
			m.Datasets[i].Source = filepath.Join(dir, src)
		}
	}
	return m, nil
}

// ParseManifest decodes a manifest. Unknown fields are rejected.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("manifest is empty")
		}
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks names, sources, delimiters and locations.
func (m *Manifest) Validate() error {
	if len(m.Datasets) == 0 {
		return errors.New("manifest lists no datasets")
	}
	seen := make(map[string]bool, len(m.Datasets))
	for i, s := range m.Datasets {
		if s.Name == "" {
			return fmt.Errorf("dataset %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("dataset %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if s.Source == "" {
			return fmt.Errorf("dataset %q: source is required", s.Name)
		}
		if _, err := s.Options(); err != nil {
			return fmt.Errorf("dataset %q: %w", s.Name, err)
		}
	}
	return nil
}

// Options converts the loader fields of a spec.
func (s Spec) Options() (Options, error) {
	opts := Options{
		TimeColumn: s.TimeColumn,
		TimeLayout: s.TimeLayout,
		Sheet:      s.Sheet,
	}
	if s.Location != "" {
		loc, err := time.LoadLocation(s.Location)
		if err != nil {
			return opts, fmt.Errorf("location: %w", err)
		}
		opts.Location = loc
	}
	switch d := []rune(s.Delimiter); {
	case len(d) == 0:
	case s.Delimiter == `\t`:
		opts.Delimiter = '\t'
	case len(d) == 1:
		opts.Delimiter = d[0]
	default:
		return opts, fmt.Errorf("delimiter %q must be a single character", s.Delimiter)
	}
	return opts, nil
}
