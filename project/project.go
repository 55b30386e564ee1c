// Package project reads and writes the runit.json project descriptor,
// scaffolds new projects and installs their dependencies.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/runit/executor"
	jsoniter "github.com/json-iterator/go"
)

const (
	// ConfigFile is the descriptor file name inside a project directory.
	ConfigFile = "runit.json"

	// NotFoundFile is the page rendered for unknown functions in html format.
	NotFoundFile = "404.html"
)

var (
	// ErrConfigMissing is returned when a directory has no descriptor.
	ErrConfigMissing = errors.New("project config missing")

	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("invalid project")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Descriptor is the content of runit.json.
type Descriptor struct {
	ID          string         `json:"_id"`
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Homepage    string         `json:"homepage"`
	Language    string         `json:"language"`
	Runtime     string         `json:"runtime"`
	StartFile   string         `json:"start_file"`
	Private     bool           `json:"private"`
	Author      map[string]any `json:"author"`

	dir string
}

// Load reads the descriptor of the project in dir.
func Load(dir string) (*Descriptor, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	data, err := os.ReadFile(filepath.Join(abs, ConfigFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, abs)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ConfigFile, err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFile, err)
	}
	d.dir = abs
	return &d, nil
}

// Dir returns the project directory.
func (d *Descriptor) Dir() string { return d.dir }

// IsMulti reports whether the project spans every supported file.
func (d *Descriptor) IsMulti() bool {
	return d.Language == executor.LanguageMulti
}

// StartPath returns the absolute path of the start file.
func (d *Descriptor) StartPath() string {
	if filepath.IsAbs(d.StartFile) {
		return d.StartFile
	}
	return filepath.Join(d.dir, d.StartFile)
}

// Validate checks the descriptor against the languages in registry. The
// start file must carry an extension of the declared language unless the
// project is multi-language.
func (d *Descriptor) Validate(registry *executor.Registry) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if d.IsMulti() {
		return nil
	}
	if d.StartFile == "" {
		return fmt.Errorf("%w: start_file is required", ErrInvalid)
	}
	lang, ok := registry.ForFile(d.StartFile)
	if !ok {
		return fmt.Errorf("%w: no language handles %q", ErrInvalid, d.StartFile)
	}
	if d.Language != "" && d.Language != lang.Name() {
		return fmt.Errorf("%w: start_file %q is not a %s file", ErrInvalid, d.StartFile, d.Language)
	}
	return nil
}

// Save writes the descriptor to dir, or to the directory it was loaded
// from when dir is empty.
func (d *Descriptor) Save(dir string) error {
	if dir == "" {
		dir = d.dir
	}
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", ConfigFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", ConfigFile, err)
	}
	d.dir = dir
	return nil
}

// NotFoundPage returns the project's 404 page, if it has one.
func (d *Descriptor) NotFoundPage() ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(d.dir, NotFoundFile))
	if err != nil {
		return nil, false
	}
	return data, true
}
