package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/mockdeck/mockdeck/pkg/mock"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidJSON      = errors.New("invalid JSON syntax")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
)

// fileConfig is the on-disk shape of a configuration file.
type fileConfig struct {
	Hostname string         `json:"hostname" yaml:"hostname"`
	Port     *int           `json:"port" yaml:"port"`
	Record   *RecordConfig  `json:"record,omitempty" yaml:"record,omitempty"`
	Include  []string       `json:"include,omitempty" yaml:"include,omitempty"`
	Requests []mock.Request `json:"requests" yaml:"requests"`
}

// LoadFromFile reads a Configuration from a JSON or YAML file.
// The format is detected from the extension (.yaml, .yml for YAML, otherwise JSON).
func LoadFromFile(path string) (*Configuration, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := decode(path, data, &fc); err != nil {
		return nil, err
	}

	baseDir := BaseDir(path)
	reqs := resolveBodies(fc.Requests, baseDir)

	for i, pattern := range fc.Include {
		included, err := loadIncludes(pattern, baseDir)
		if err != nil {
			return nil, fmt.Errorf("include[%d] (%s): %w", i, pattern, err)
		}
		reqs = append(reqs, included...)
	}

	set, err := mock.NewRequestSet(reqs...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg := &Configuration{
		Hostname: fc.Hostname,
		Port:     DefaultPort,
		Requests: *set,
		Record:   fc.Record,
	}
	if cfg.Hostname == "" {
		cfg.Hostname = DefaultHostname
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// LoadRequestsFromFile reads a plain list of requests, as used by include
// files. Relative body files are resolved against the file's directory.
func LoadRequestsFromFile(path string) ([]mock.Request, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var reqs []mock.Request
	if err := decode(path, data, &reqs); err != nil {
		return nil, err
	}
	return resolveBodies(reqs, BaseDir(path)), nil
}

func loadIncludes(pattern, baseDir string) ([]mock.Request, error) {
	matches, err := expandGlob(ResolvePath(baseDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("expanding glob pattern: %w", err)
	}

	// Sort matches for deterministic ordering
	sort.Strings(matches)

	var result []mock.Request
	for _, match := range matches {
		reqs, err := LoadRequestsFromFile(match)
		if err != nil {
			rel, relErr := filepath.Rel(baseDir, match)
			if relErr != nil {
				rel = match
			}
			return nil, fmt.Errorf("loading %s: %w", rel, err)
		}
		result = append(result, reqs...)
	}
	return result, nil
}

// expandGlob expands a glob pattern to a list of matching file paths.
// Uses doublestar for ** support, falls back to filepath.Glob for simple patterns.
func expandGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	}
	return filepath.Glob(pattern)
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return []byte(ExpandEnvVars(string(data))), nil
}

func decode(path string, data []byte, out any) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w in %s: %v", ErrInvalidYAML, path, err)
		}
		return nil
	}

	if !json.Valid(data) {
		return fmt.Errorf("%w in file: %s", ErrInvalidJSON, path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse JSON in %s: %w", path, err)
	}
	return nil
}

func resolveBodies(reqs []mock.Request, baseDir string) []mock.Request {
	out := make([]mock.Request, len(reqs))
	for i, r := range reqs {
		if r.Response.Body != nil {
			body := *r.Response.Body
			body.FileLocation = ResolvePath(baseDir, body.FileLocation)
			r.Response.Body = &body
		}
		out[i] = r
	}
	return out
}

// BaseDir returns the directory relative paths in configPath are resolved
// against: the file's own directory, or the working directory when empty.
func BaseDir(configPath string) string {
	if configPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			return cwd
		}
		return "."
	}
	return filepath.Dir(configPath)
}

// ResolvePath resolves targetPath against basePath unless it is absolute.
// A leading ~/ expands to the user's home directory.
func ResolvePath(basePath, targetPath string) string {
	if targetPath == "" || filepath.IsAbs(targetPath) {
		return targetPath
	}
	if strings.HasPrefix(targetPath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, targetPath[2:])
		}
	}
	return filepath.Join(basePath, targetPath)
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default expand to the empty string.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		if val := os.Getenv(sub[1]); val != "" {
			return val
		}
		return sub[2]
	})
}

// Save writes cfg as YAML (or JSON, by extension) using an atomic rename.
// Body file paths are written as given.
func Save(path string, cfg *Configuration) error {
	if cfg == nil {
		return errors.New("configuration cannot be nil")
	}

	fc := fileConfig{
		Hostname: cfg.Hostname,
		Port:     &cfg.Port,
		Record:   cfg.Record,
		Requests: cfg.Requests.All(),
	}

	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yaml.Marshal(fc)
	} else {
		data, err = json.MarshalIndent(fc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
