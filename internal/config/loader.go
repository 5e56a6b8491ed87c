package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadResult is a loaded configuration together with where each value was set.
type LoadResult struct {
	Config  *Config
	Sources map[string]Source // yaml path -> last file or env var that set it
	Files   []string          // every file read, includes before their includer
}

// IncludeList accepts a single path or a list of paths. Directories expand
// to their *.yaml and *.yml files in name order.
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	items := []*yaml.Node{value}
	if value.Kind == yaml.SequenceNode {
		items = value.Content
	} else if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("include must be a string or list of strings")
	}

	paths := make([]string, 0, len(items))
	for _, item := range items {
		if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
			return fmt.Errorf("include entries must be strings")
		}
		paths = append(paths, item.Value)
	}
	*l = paths
	return nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/lockin/config.yaml, or the
// platform config directory equivalent (%APPDATA%\lockin on Windows).
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "lockin", "config.yaml"), nil
}

// Load reads the configuration from the standard location, applies LOCKIN_*
// environment overrides and validates the result.
func Load() (*Config, error) {
	res, err := LoadWithSources()
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadWithSources is Load plus the per-value sources.
func LoadWithSources() (*LoadResult, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads path over the defaults. A missing file yields defaults.
func LoadFromPath(path string) (*LoadResult, error) {
	l := &fileLoader{cfg: DefaultConfig(), sources: map[string]Source{}}

	switch _, err := os.Stat(path); {
	case err == nil:
		if err := l.load(path, nil); err != nil {
			return nil, err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}
	l.cfg.Include = nil

	envSources, err := ApplyEnv(l.cfg)
	if err != nil {
		return nil, err
	}
	for key, src := range envSources {
		l.sources[key] = src
	}

	if err := l.cfg.Validate(); err != nil {
		return nil, withSource(err, l.sources)
	}
	return &LoadResult{Config: l.cfg, Sources: l.sources, Files: l.files}, nil
}

// fileLoader decodes a file tree into one Config. yaml.v3 leaves fields a
// document does not mention untouched, so later files only override the
// keys they set.
type fileLoader struct {
	cfg     *Config
	sources map[string]Source
	files   []string
}

func (l *fileLoader) load(path string, chain []string) error {
	canon, err := canonicalPath(path)
	if err != nil {
		return err
	}
	if slices.Contains(chain, canon) {
		return fmt.Errorf("include cycle detected: %s -> %s", strings.Join(chain, " -> "), canon)
	}
	chain = append(chain, canon)

	data, err := os.ReadFile(canon)
	if err != nil {
		return fmt.Errorf("%s: failed to read: %w", canon, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: failed to parse yaml: %w", canon, err)
	}

	for _, ref := range includeRefs(&doc, canon) {
		targets, err := includeTargets(canon, ref.Value)
		if err != nil {
			return fmt.Errorf("%s: include %q: %w", ref.Source, ref.Value, err)
		}
		for _, target := range targets {
			if err := l.load(target, chain); err != nil {
				return err
			}
		}
	}

	if err := decodeStrict(data, l.cfg); err != nil {
		return fmt.Errorf("%s: %w", canon, err)
	}
	recordSources(&doc, canon, l.sources)
	l.files = append(l.files, canon)
	return nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

// includeTargets resolves an include entry relative to the including file.
func includeTargets(from, include string) ([]string, error) {
	if include == "" {
		return nil, fmt.Errorf("path is empty")
	}
	path, err := expandHome(include)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(from), path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		switch strings.ToLower(filepath.Ext(ent.Name())) {
		case ".yaml", ".yml":
			if !ent.IsDir() {
				files = append(files, filepath.Join(path, ent.Name()))
			}
		}
	}
	return files, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
