package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrDatasetNotFound is returned when no descriptor exists for a dataset name.
var ErrDatasetNotFound = errors.New("dataset not found")

// descriptorExts lists recognised descriptor extensions in lookup order.
var descriptorExts = []string{".json", ".yaml", ".yml"}

// Catalog is a folder of dataset descriptors, one file per dataset.
// The dataset name is the file name without its extension.
type Catalog struct {
	dir string
}

// NewCatalog creates a catalog over dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the catalog folder.
func (c *Catalog) Dir() string {
	return c.dir
}

// List returns the names of all datasets in the catalog, sorted.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read datasets directory: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !isDescriptorExt(ext) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

// Load reads and validates the descriptor of the named dataset.
func (c *Catalog) Load(name string) (*Config, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
	}

	for _, ext := range descriptorExts {
		path := filepath.Join(c.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadConfig(path)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
}

func isDescriptorExt(ext string) bool {
	for _, e := range descriptorExts {
		if e == ext {
			return true
		}
	}
	return false
}
