package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const manifestName = "borrowsim.toml"

const nothingToRunMessage = "nothing to run: no scripts, no --scenario and no " + manifestName + " found\nplease name what to replay, e.g.:\n  borrowsim run path/to/script.toml\n  borrowsim run --all"

type projectManifest struct {
	Path   string
	Root   string
	Config projectConfig
}

type projectConfig struct {
	Run   runConfig   `toml:"run"`
	Cache cacheConfig `toml:"cache"`
}

type runConfig struct {
	Scenarios []string `toml:"scenarios"`
	Scripts   []string `toml:"scripts"`
	Format    string   `toml:"format"`
	Jobs      int      `toml:"jobs"`
	Events    bool     `toml:"events"`
	Lexical   bool     `toml:"lexical"`
}

type cacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

func findManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, manifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadProjectManifest(startDir string) (*projectManifest, bool, error) {
	manifestPath, ok, err := findManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := loadProjectConfig(manifestPath)
	if err != nil {
		return nil, true, err
	}
	return &projectManifest{
		Path:   manifestPath,
		Root:   filepath.Dir(manifestPath),
		Config: cfg,
	}, true, nil
}

func loadProjectConfig(path string) (projectConfig, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return projectConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return projectConfig{}, fmt.Errorf("%s: unknown keys: %v", path, undecoded)
	}
	if cfg.Run.Jobs < 0 {
		return projectConfig{}, fmt.Errorf("%s: [run].jobs must not be negative", path)
	}
	for _, s := range cfg.Run.Scripts {
		if strings.TrimSpace(s) == "" {
			return projectConfig{}, fmt.Errorf("%s: [run].scripts has an empty entry", path)
		}
	}
	return cfg, nil
}

// scriptPaths resolves [run].scripts relative to the manifest directory.
func (m *projectManifest) scriptPaths() []string {
	out := make([]string, 0, len(m.Config.Run.Scripts))
	for _, s := range m.Config.Run.Scripts {
		p := filepath.FromSlash(strings.TrimSpace(s))
		if !filepath.IsAbs(p) {
			p = filepath.Join(m.Root, p)
		}
		out = append(out, p)
	}
	return out
}

// cacheDir resolves [cache].dir relative to the manifest directory; "" means
// the user cache directory.
func (m *projectManifest) cacheDir() string {
	dir := strings.TrimSpace(m.Config.Cache.Dir)
	if dir == "" {
		return ""
	}
	dir = filepath.FromSlash(dir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.Root, dir)
	}
	return dir
}
