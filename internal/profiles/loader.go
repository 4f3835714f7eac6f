package profiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog is the index file (catalog.yaml) at the root of a profile
// search path.
type Catalog struct {
	Source      string       `yaml:"source"`
	Description string       `yaml:"description"`
	Profiles    []CatalogRef `yaml:"profiles"`
}

// CatalogRef points at one profile JSON file relative to its catalog.
type CatalogRef struct {
	ID          string `yaml:"id"`
	File        string `yaml:"file"`
	Name        string `yaml:"name"`
	Train       string `yaml:"train"`
	Description string `yaml:"description"`
}

// Loader resolves profile IDs against the configured search paths and
// validates every document before handing it out.
type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Catalogs reads every catalog.yaml found across the search paths.
// Paths without a catalog are skipped.
func (l *Loader) Catalogs() ([]Catalog, error) {
	catalogs := make([]Catalog, 0, len(l.searchPaths))

	for _, searchPath := range l.searchPaths {
		indexPath := filepath.Join(searchPath, "catalog.yaml")

		data, err := os.ReadFile(indexPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read catalog %s: %w", indexPath, err)
		}

		var catalog Catalog
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("failed to parse catalog %s: %w", indexPath, err)
		}

		catalogs = append(catalogs, catalog)
	}

	return catalogs, nil
}

// Load resolves a profile ID to its JSON file via the catalogs, or
// falls back to <id>.json in each search path, validates it and returns
// the parsed profile.
func (l *Loader) Load(profileID string) (*Profile, error) {
	if cached, ok := l.cache.Load(profileID); ok {
		return cached.(*Profile), nil
	}

	data, foundPath, err := l.locate(profileID)
	if err != nil {
		return nil, err
	}

	if err := l.validator.ValidateProfile(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	l.cache.Store(profileID, &profile)

	return &profile, nil
}

func (l *Loader) locate(profileID string) ([]byte, string, error) {
	for _, searchPath := range l.searchPaths {
		indexPath := filepath.Join(searchPath, "catalog.yaml")
		if data, err := os.ReadFile(indexPath); err == nil {
			var catalog Catalog
			if err := yaml.Unmarshal(data, &catalog); err != nil {
				return nil, "", fmt.Errorf("failed to parse catalog %s: %w", indexPath, err)
			}
			for _, ref := range catalog.Profiles {
				if ref.ID != profileID {
					continue
				}
				fullPath := filepath.Join(searchPath, ref.File)
				data, err := os.ReadFile(fullPath)
				if err != nil {
					return nil, "", fmt.Errorf("failed to read profile %s: %w", fullPath, err)
				}
				return data, fullPath, nil
			}
		}

		// Catalog-less fallback
		fullPath := filepath.Join(searchPath, profileID+".json")
		if data, err := os.ReadFile(fullPath); err == nil {
			return data, fullPath, nil
		}
	}

	return nil, "", fmt.Errorf("profile not found: %s (searched in: %v)", profileID, l.searchPaths)
}

// ClearCache drops all cached profiles so edited files get re-read.
func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
