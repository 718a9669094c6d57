// Package catalog loads badge configurations from JSON files on disk.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jwebster45206/compass-engine/pkg/scoring"
)

// BadgesDir is where badge files live under the data directory
const BadgesDir = "badges"

// Parse decodes one badge configuration object or an array of them.
// In strict mode unknown fields are rejected.
func Parse(data []byte, strict bool) ([]*scoring.BadgeConfiguration, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty badge file")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	if strict {
		decoder.DisallowUnknownFields()
	}

	var configs []*scoring.BadgeConfiguration
	if trimmed[0] == '[' {
		if err := decoder.Decode(&configs); err != nil {
			return nil, err
		}
	} else {
		var cfg scoring.BadgeConfiguration
		if err := decoder.Decode(&cfg); err != nil {
			return nil, err
		}
		configs = append(configs, &cfg)
	}

	var errs []error
	for _, cfg := range configs {
		if cfg == nil {
			errs = append(errs, errors.New("null badge configuration"))
			continue
		}
		if err := cfg.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return configs, nil
}

// ParseFile reads and parses a single badge file
func ParseFile(path string, strict bool) ([]*scoring.BadgeConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read badge file: %w", err)
	}
	configs, err := Parse(data, strict)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return configs, nil
}

// LoadDir loads every *.json badge file under dataDir/badges.
// A missing directory yields an empty catalogue. Duplicate ids are an error.
func LoadDir(dataDir string) ([]*scoring.BadgeConfiguration, error) {
	root := filepath.Join(dataDir, BadgesDir)

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*scoring.BadgeConfiguration{}, nil
		}
		return nil, fmt.Errorf("failed to walk badges directory: %w", err)
	}
	sort.Strings(paths)

	configs := make([]*scoring.BadgeConfiguration, 0, len(paths))
	seen := make(map[string]string)
	for _, path := range paths {
		parsed, err := ParseFile(path, false)
		if err != nil {
			return nil, err
		}
		for _, cfg := range parsed {
			if first, dup := seen[cfg.ID]; dup {
				return nil, fmt.Errorf("duplicate badge id %q in %s (first defined in %s)", cfg.ID, path, first)
			}
			seen[cfg.ID] = path
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}
