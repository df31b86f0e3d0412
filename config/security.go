package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Bounds applied to every configuration source, whatever its format.
const (
	maxFileBytes = 1 << 20 // a client config is a few hundred bytes
	maxDepth     = 16      // Config nests four levels deep
	maxEnvLen    = 4096
)

// readConfigFile reads a JSON or YAML layer after checking its extension,
// that it is a regular file and that it fits maxFileBytes.
func readConfigFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("empty config path")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("unsupported config file %s: want .json, .yaml or .yml", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	return data, nil
}

// checkDepth bounds the nesting of a decoded layer. It runs on the generic
// map, so JSON and YAML layers get the same limit.
func checkDepth(v any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("nesting deeper than %d levels", maxDepth)
	}
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if err := checkDepth(child, depth+1); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
	case map[any]any:
		for k, child := range val {
			if err := checkDepth(child, depth+1); err != nil {
				return fmt.Errorf("%v: %w", k, err)
			}
		}
	case []any:
		for i, child := range val {
			if err := checkDepth(child, depth+1); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// checkEnvValue rejects override values that could not come from a sane
// deployment: oversized ones and ones carrying NUL bytes.
func checkEnvValue(key, value string) error {
	if len(value) > maxEnvLen {
		return fmt.Errorf("%s too long: %d > %d", key, len(value), maxEnvLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%s contains a NUL byte", key)
	}
	return nil
}
