// Package filesystem loads stub definitions from a directory tree and
// watches it for changes.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sophialabs/stubkit/internal/domain/stub"
	"github.com/sophialabs/stubkit/internal/infrastructure/services"
)

// BodyDir is the directory under the root reserved for bodyFile content.
// Files below it are never loaded as stubs.
const BodyDir = "__files"

var _ stub.Repository = (*Repository)(nil)

// Repository loads stubs from .json, .yaml and .yml files in a directory tree.
type Repository struct {
	rootDir string
}

// NewRepository creates a repository rooted at rootDir.
func NewRepository(rootDir string) (*Repository, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return &Repository{rootDir: absRoot}, nil
}

// RootDir returns the absolute root directory.
func (r *Repository) RootDir() string {
	return r.rootDir
}

// LoadAll decodes every stub file in sort-key order. Stubs keep the order in
// which they appear inside each file.
func (r *Repository) LoadAll(ctx context.Context) ([]*stub.Definition, error) {
	files, err := r.Files()
	if err != nil {
		return nil, err
	}

	var defs []*stub.Definition
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loaded, err := r.loadFile(rel)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", rel, err)
		}
		defs = append(defs, loaded...)
	}
	return defs, nil
}

// Files returns the stub files below the root as slash-separated relative
// paths, ordered by SortKey.
func (r *Repository) Files() ([]string, error) {
	var files []string

	err := filepath.WalkDir(r.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != r.rootDir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsStubFile(path) {
			return nil
		}
		rel, err := filepath.Rel(r.rootDir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk stubs directory: %w", err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		ki, kj := SortKey(files[i]), SortKey(files[j])
		if ki != kj {
			return ki < kj
		}
		return files[i] < files[j]
	})
	return files, nil
}

func (r *Repository) loadFile(rel string) ([]*stub.Definition, error) {
	data, err := os.ReadFile(filepath.Join(r.rootDir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return services.DecodeStubs(data)
}

// SortKey flattens a relative path so that nested files sort as if their
// directories were name prefixes: "auth/login.json" sorts as "auth_login.json".
func SortKey(rel string) string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(rel)
}

// IsStubFile reports whether name has a stub file extension.
func IsStubFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func skipDir(name string) bool {
	return name == BodyDir || strings.HasPrefix(name, ".")
}
