// Package config loads sniffpart configuration. YAML, JSON and CUE files
// are all read through CUE, so several files can be unified into one value
// and conflicting settings are reported instead of silently overridden.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/encoding/yaml"
)

// LoadValueFromReader reads YAML or JSON from r into a CUE value.
func LoadValueFromReader(r io.Reader) (cue.Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read config: %w", err)
	}
	return buildData(cuecontext.New(), "", data)
}

// LoadValue loads one file or directory into a CUE value.
//
// .cue files and directories are loaded as CUE instances so imports work.
// Anything else is read as data: .json is compiled directly and every
// other extension is parsed as YAML.
func LoadValue(path string) (cue.Value, error) {
	return loadValue(cuecontext.New(), path)
}

func loadValue(ctx *cue.Context, path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() || strings.EqualFold(filepath.Ext(path), ".cue") {
		abs, err := filepath.Abs(path)
		if err != nil {
			return cue.Value{}, fmt.Errorf("failed to resolve path: %w", err)
		}
		dir, arg := filepath.Dir(abs), abs
		if info.IsDir() {
			dir, arg = abs, "."
		}
		instances := load.Instances([]string{arg}, &load.Config{Dir: dir, DataFiles: true})
		if len(instances) == 0 {
			return cue.Value{}, fmt.Errorf("no instances loaded from %s", path)
		}
		if err := instances[0].Err; err != nil {
			return cue.Value{}, fmt.Errorf("failed to load config: %w", err)
		}
		val := ctx.BuildInstance(instances[0])
		if err := val.Err(); err != nil {
			return cue.Value{}, fmt.Errorf("failed to build CUE value: %w", err)
		}
		return val, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read file: %w", err)
	}
	return buildData(ctx, path, data)
}

func buildData(ctx *cue.Context, path string, data []byte) (cue.Value, error) {
	var val cue.Value
	if strings.EqualFold(filepath.Ext(path), ".json") {
		val = ctx.CompileBytes(data, cue.Filename(path))
	} else {
		file, err := yaml.Extract(path, data)
		if err != nil {
			return cue.Value{}, fmt.Errorf("failed to parse config: %w", err)
		}
		val = ctx.BuildFile(file)
	}
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to build CUE value: %w", err)
	}
	return val, nil
}

// LoadAndUnifyPaths expands each glob pattern, loads every match and
// unifies the results. Patterns without matches are skipped, so defaults
// like ~/.sniffpart/*.yaml may point at nothing. With no files at all the
// result is an empty struct.
func LoadAndUnifyPaths(patterns []string) (cue.Value, error) {
	ctx := cuecontext.New()
	unified := ctx.CompileString("{}")

	seen := make(map[string]bool)
	for _, pattern := range patterns {
		pattern = expandHome(pattern)
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return cue.Value{}, fmt.Errorf("invalid config pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, path := range matches {
			if seen[path] {
				continue
			}
			seen[path] = true
			val, err := loadValue(ctx, path)
			if err != nil {
				return cue.Value{}, fmt.Errorf("%s: %w", path, err)
			}
			unified = unified.Unify(val)
			if err := unified.Err(); err != nil {
				return cue.Value{}, fmt.Errorf("%s conflicts with earlier config: %w", path, err)
			}
		}
	}
	if err := unified.Validate(); err != nil {
		return cue.Value{}, fmt.Errorf("invalid config: %w", err)
	}
	return unified, nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

// LoadFromFile loads path and decodes it into a T.
//
// Example:
//
//	cfg, err := config.LoadFromFile[config.ServerConfig]("sniffpart.yaml")
func LoadFromFile[T any](path string) (*T, error) {
	val, err := LoadValue(path)
	if err != nil {
		return nil, err
	}
	return Decode[T](val)
}

// Decode decodes val into a T.
func Decode[T any](val cue.Value) (*T, error) {
	var out T
	if err := val.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &out, nil
}
