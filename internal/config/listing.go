package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ListingFileServerConfig is the HandlerConfig for "ListingFileServer" routes.
// Options may be given as a list of names or through the boolean shorthands;
// both forms are merged.
type ListingFileServerConfig struct {
	Root          string            `json:"root"`
	Options       []string          `json:"options,omitempty"`
	DotFiles      *bool             `json:"dot_files,omitempty"`
	Index         *bool             `json:"index,omitempty"`
	NormalizeDirs *bool             `json:"normalize_dirs,omitempty"`
	Rank          *int              `json:"rank,omitempty"`
	Title         string            `json:"title,omitempty"`
	MimeTypes     map[string]string `json:"mime_types,omitempty"`
	MimeTypesPath *string           `json:"mime_types_path,omitempty"`

	// ResolvedMimeTypes merges MimeTypes and the file at MimeTypesPath, keys lowercased.
	ResolvedMimeTypes map[string]string `json:"-"`
}

// OptionNames returns the de-duplicated option names enabled by the config.
func (c *ListingFileServerConfig) OptionNames() []string {
	var names []string
	seen := make(map[string]bool)
	add := func(n string) {
		key := strings.ToLower(n)
		if !seen[key] {
			seen[key] = true
			names = append(names, n)
		}
	}
	for _, n := range c.Options {
		add(n)
	}
	if c.DotFiles != nil && *c.DotFiles {
		add("DotFiles")
	}
	if c.Index != nil && *c.Index {
		add("Index")
	}
	if c.NormalizeDirs != nil && *c.NormalizeDirs {
		add("NormalizeDirs")
	}
	return names
}

// ParseAndValidateListingFileServerConfig decodes a handler_config block.
// Relative paths are resolved against the directory of mainConfigFilePath; when
// that is empty they must already be absolute.
func ParseAndValidateListingFileServerConfig(raw json.RawMessage, mainConfigFilePath string) (*ListingFileServerConfig, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ConfigError{FilePath: mainConfigFilePath, Message: "ListingFileServer handler_config is required"}
	}
	var cfg ListingFileServerConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ConfigError{FilePath: mainConfigFilePath, Message: "invalid ListingFileServer handler_config", Err: err}
	}

	if cfg.Root == "" {
		return nil, &ConfigError{FilePath: mainConfigFilePath, Message: "ListingFileServer root cannot be empty"}
	}
	root, err := absolutize(cfg.Root, mainConfigFilePath)
	if err != nil {
		return nil, &ConfigError{FilePath: mainConfigFilePath, Message: "ListingFileServer root", Err: err}
	}
	cfg.Root = root

	resolved := make(map[string]string, len(cfg.MimeTypes))
	for ext, typ := range cfg.MimeTypes {
		if err := checkMimeEntry(ext, typ); err != nil {
			return nil, &ConfigError{FilePath: mainConfigFilePath, Message: "invalid mime_types entry", Err: err}
		}
		resolved[strings.ToLower(ext)] = typ
	}
	if cfg.MimeTypesPath != nil && *cfg.MimeTypesPath != "" {
		p, err := absolutize(*cfg.MimeTypesPath, mainConfigFilePath)
		if err != nil {
			return nil, &ConfigError{FilePath: mainConfigFilePath, Message: "mime_types_path", Err: err}
		}
		fromFile, err := LoadMimeTypesFile(p)
		if err != nil {
			return nil, err
		}
		for ext, typ := range fromFile {
			resolved[ext] = typ
		}
	}
	cfg.ResolvedMimeTypes = resolved
	return &cfg, nil
}

// LoadMimeTypesFile reads a JSON object mapping extensions (".ext") to MIME types.
// Keys in the returned map are lowercased.
func LoadMimeTypesFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{FilePath: path, Message: "failed to read custom MIME types file", Err: err}
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &ConfigError{FilePath: path, Message: "failed to parse custom MIME types JSON file", Err: err}
	}
	out := make(map[string]string, len(parsed))
	for ext, typ := range parsed {
		if err := checkMimeEntry(ext, typ); err != nil {
			return nil, &ConfigError{FilePath: path, Message: "invalid MIME types file entry", Err: err}
		}
		out[strings.ToLower(ext)] = typ
	}
	return out, nil
}

func checkMimeEntry(ext, typ string) error {
	if !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("extension %q must start with a '.'", ext)
	}
	if typ == "" {
		return fmt.Errorf("empty MIME type for extension %q", ext)
	}
	return nil
}

func absolutize(p, mainConfigFilePath string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if mainConfigFilePath == "" {
		return "", fmt.Errorf("relative path %q needs a configuration file to be resolved against", p)
	}
	return filepath.Join(filepath.Dir(mainConfigFilePath), p), nil
}
