package executor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LanguageMulti is the project language that spans every supported file of
// the project directory.
const LanguageMulti = "multi"

// Registry maps language names and file extensions to languages, and opens
// the adapter a project needs.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Language
	byExt  map[string]Language
}

// NewRegistry creates a registry holding langs.
func NewRegistry(langs ...Language) *Registry {
	r := &Registry{
		byName: make(map[string]Language),
		byExt:  make(map[string]Language),
	}
	for _, lang := range langs {
		r.Register(lang)
	}
	return r
}

// Register adds lang, replacing any language with the same name or
// extension.
func (r *Registry) Register(lang Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[lang.Name()] = lang
	for _, ext := range lang.Extensions() {
		r.byExt[strings.ToLower(ext)] = lang
	}
}

// Get returns the language registered under name.
func (r *Registry) Get(name string) (Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.byName[name]
	return lang, ok
}

// ForFile returns the language handling the extension of path.
func (r *Registry) ForFile(path string) (Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// List returns the registered language names in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extensions returns the registered extensions in lexical order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Open returns the adapter for a project in dir. Language "multi" opens a
// Multi over dir; any other language opens a Module for startFile, which
// must carry one of that language's extensions. An empty language is
// inferred from startFile.
func (r *Registry) Open(ctx context.Context, language, dir, startFile string, opts ...Option) (Dispatcher, error) {
	if language == LanguageMulti {
		return NewMulti(ctx, dir, r, opts...)
	}

	byFile, ok := r.ForFile(startFile)
	if !ok {
		return nil, fmt.Errorf("%w: no language handles %q", ErrUnknownLanguage, startFile)
	}
	if language != "" {
		lang, ok := r.Get(language)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
		}
		if lang.Name() != byFile.Name() {
			return nil, fmt.Errorf("%w: %q is not a %s file", ErrUnknownLanguage, startFile, language)
		}
	}

	path := startFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, startFile)
	}
	return NewModule(ctx, path, byFile, opts...)
}

// Close releases languages that hold resources, such as compiled modules.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var first error
	for _, lang := range r.byName {
		if c, ok := lang.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
