package project

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/caffeineduck/runit/executor"
	"github.com/google/uuid"
)

//go:embed templates
var templates embed.FS

// ErrExists is returned by Init when the target directory is not empty.
var ErrExists = errors.New("project directory not empty")

// StarterFiles maps scaffoldable languages to their start file.
var StarterFiles = map[string]string{
	"python":               "application.py",
	"javascript":           "main.js",
	"php":                  "index.php",
	executor.LanguageMulti: "application.py",
}

// DefaultNotFoundPage returns the built-in 404 page.
func DefaultNotFoundPage() []byte {
	data, _ := templates.ReadFile("templates/" + NotFoundFile)
	return data
}

// InitOption configures Init.
type InitOption func(*Descriptor)

// WithRuntime sets the project interpreter.
func WithRuntime(runtime string) InitOption {
	return func(d *Descriptor) {
		d.Runtime = runtime
	}
}

// WithAuthor sets the author metadata.
func WithAuthor(name, email string) InitOption {
	return func(d *Descriptor) {
		d.Author = map[string]any{"name": name, "email": email}
	}
}

// WithDescription sets the project description.
func WithDescription(desc string) InitOption {
	return func(d *Descriptor) {
		d.Description = desc
	}
}

// Init creates a project named name in dir: the descriptor, the starter
// files of language and a 404 page. dir is created if needed and must be
// empty.
func Init(dir, name, language string, opts ...InitOption) (*Descriptor, error) {
	start, ok := StarterFiles[language]
	if !ok {
		return nil, fmt.Errorf("%w: cannot scaffold %q", executor.ErrUnknownLanguage, language)
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrExists, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	d := &Descriptor{
		ID:        uuid.NewString(),
		Name:      name,
		Version:   "0.0.1",
		Language:  language,
		StartFile: start,
		Author:    map[string]any{},
	}
	for _, opt := range opts {
		opt(d)
	}

	vars := struct{ Name, Slug string }{Name: name, Slug: slug(name)}
	root := path.Join("templates", language)
	err := fs.WalkDir(templates, root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		rel := strings.TrimPrefix(p, root+"/")
		return render(p, filepath.Join(dir, filepath.FromSlash(rel)), vars)
	})
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(dir, NotFoundFile), DefaultNotFoundPage(), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", NotFoundFile, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := d.Save(abs); err != nil {
		return nil, err
	}
	return d, nil
}

func render(src, dst string, vars any) error {
	data, err := templates.ReadFile(src)
	if err != nil {
		return err
	}
	tmpl, err := template.New(path.Base(src)).Parse(string(data))
	if err != nil {
		return fmt.Errorf("parse template %s: %w", src, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return fmt.Errorf("render %s: %w", src, err)
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		return "project"
	}
	return s
}
