package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultServerAddress           = ":8080"
	defaultGracefulShutdownTimeout = "30s"
	defaultLogLevel                = LogLevelInfo
	defaultAccessLogTarget         = "stdout"
	defaultAccessLogFormat         = "json"
	defaultErrorLogTarget          = "stderr"
)

// tomlRoute mirrors Route for TOML decoding. handler_config is decoded as a
// generic table and re-encoded as JSON so handlers only ever parse JSON.
type tomlRoute struct {
	PathPattern   string                 `toml:"path_pattern"`
	MatchType     MatchType              `toml:"match_type"`
	HandlerType   string                 `toml:"handler_type"`
	Rank          *int                   `toml:"rank"`
	HandlerConfig map[string]interface{} `toml:"handler_config"`
}

type tomlConfig struct {
	Server  *ServerConfig  `toml:"server"`
	Routing *struct {
		Routes []tomlRoute `toml:"routes"`
	} `toml:"routing"`
	Logging *LoggingConfig `toml:"logging"`
}

// LoadConfig reads, parses, defaults and validates the configuration file at path.
// The format is chosen by extension (.json, .toml); any other extension is tried
// as JSON first and then as TOML.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("configuration file path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{FilePath: path, Message: "failed to read configuration file", Err: err}
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cfg, err = parseJSON(data)
		if err != nil {
			return nil, &ConfigError{FilePath: path, Message: "failed to parse JSON config", Err: err}
		}
	case ".toml":
		cfg, err = parseTOML(data)
		if err != nil {
			return nil, &ConfigError{FilePath: path, Message: "failed to parse TOML config", Err: err}
		}
	default:
		var jsonErr, tomlErr error
		cfg, jsonErr = parseJSON(data)
		if jsonErr != nil {
			cfg, tomlErr = parseTOML(data)
			if tomlErr != nil {
				return nil, &ConfigError{
					FilePath: path,
					Message:  "failed to auto-detect and parse config",
					Err:      fmt.Errorf("JSON error: %v; TOML error: %v", jsonErr, tomlErr),
				}
			}
		}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseJSON(data []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseTOML(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("toml: empty input")
	}
	var tc tomlConfig
	md, err := toml.Decode(string(data), &tc)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			if len(k) > 0 && k[0] == "routing" {
				// handler_config contents are validated by the handler itself.
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
	}

	cfg := &Config{Server: tc.Server, Logging: tc.Logging}
	if tc.Routing != nil {
		cfg.Routing = &RoutingConfig{}
		for i, tr := range tc.Routing.Routes {
			r := Route{
				PathPattern: tr.PathPattern,
				MatchType:   tr.MatchType,
				HandlerType: tr.HandlerType,
				Rank:        tr.Rank,
			}
			if tr.HandlerConfig != nil {
				raw, err := json.Marshal(tr.HandlerConfig)
				if err != nil {
					return nil, fmt.Errorf("routing.routes[%d].handler_config: %w", i, err)
				}
				r.HandlerConfig = raw
			}
			cfg.Routing.Routes = append(cfg.Routing.Routes, r)
		}
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Server.Address == nil {
		cfg.Server.Address = strPtr(defaultServerAddress)
	}
	if cfg.Server.GracefulShutdownTimeout == nil {
		cfg.Server.GracefulShutdownTimeout = strPtr(defaultGracefulShutdownTimeout)
	}
	if cfg.Server.EnableH2C == nil {
		cfg.Server.EnableH2C = boolPtr(true)
	}

	if cfg.Routing == nil {
		cfg.Routing = &RoutingConfig{}
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.LogLevel == "" {
		cfg.Logging.LogLevel = defaultLogLevel
	}
	if cfg.Logging.AccessLog == nil {
		cfg.Logging.AccessLog = &AccessLogConfig{}
	}
	if cfg.Logging.AccessLog.Enabled == nil {
		cfg.Logging.AccessLog.Enabled = boolPtr(true)
	}
	if cfg.Logging.AccessLog.Target == nil {
		cfg.Logging.AccessLog.Target = strPtr(defaultAccessLogTarget)
	}
	if cfg.Logging.AccessLog.Format == "" {
		cfg.Logging.AccessLog.Format = defaultAccessLogFormat
	}
	if cfg.Logging.ErrorLog == nil {
		cfg.Logging.ErrorLog = &ErrorLogConfig{}
	}
	if cfg.Logging.ErrorLog.Target == nil {
		cfg.Logging.ErrorLog.Target = strPtr(defaultErrorLogTarget)
	}
}

// Validate checks a defaulted configuration. configPath is only used in error messages
// and for resolving relative TLS paths.
func Validate(cfg *Config, configPath string) error {
	fail := func(format string, args ...interface{}) error {
		return &ConfigError{FilePath: configPath, Message: fmt.Sprintf(format, args...)}
	}

	if *cfg.Server.Address == "" {
		return fail("server.address cannot be empty")
	}
	if _, err := time.ParseDuration(*cfg.Server.GracefulShutdownTimeout); err != nil {
		return fail("server.graceful_shutdown_timeout %q is not a valid duration", *cfg.Server.GracefulShutdownTimeout)
	}
	if tlsCfg := cfg.Server.TLS; tlsCfg != nil {
		if tlsCfg.CertFile == "" || tlsCfg.KeyFile == "" {
			return fail("server.tls requires both cert_file and key_file")
		}
		if configPath != "" {
			tlsCfg.CertFile = resolveRelative(tlsCfg.CertFile, configPath)
			tlsCfg.KeyFile = resolveRelative(tlsCfg.KeyFile, configPath)
		}
	}

	type routeKey struct {
		pattern string
		match   MatchType
	}
	seen := make(map[routeKey]int)
	for i, r := range cfg.Routing.Routes {
		if !strings.HasPrefix(r.PathPattern, "/") {
			return fail("routing.routes[%d].path_pattern %q must start with '/'", i, r.PathPattern)
		}
		if r.MatchType != MatchTypeExact && r.MatchType != MatchTypePrefix {
			return fail("routing.routes[%d].match_type %q must be %q or %q", i, r.MatchType, MatchTypeExact, MatchTypePrefix)
		}
		if r.MatchType == MatchTypePrefix && !strings.HasSuffix(r.PathPattern, "/") {
			return fail("routing.routes[%d].path_pattern %q with MatchType 'Prefix' must end with '/'", i, r.PathPattern)
		}
		if r.MatchType == MatchTypeExact && r.PathPattern != "/" && strings.HasSuffix(r.PathPattern, "/") {
			return fail("routing.routes[%d].path_pattern %q with MatchType 'Exact' must not end with '/' unless it is the root path '/'", i, r.PathPattern)
		}
		if r.HandlerType == "" {
			return fail("routing.routes[%d].handler_type cannot be empty", i)
		}
		k := routeKey{r.PathPattern, r.MatchType}
		if prev, dup := seen[k]; dup {
			return fail("routing.routes[%d] duplicates routing.routes[%d] (%s %s)", i, prev, r.MatchType, r.PathPattern)
		}
		seen[k] = i
	}

	switch cfg.Logging.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fail("logging.log_level %q is not one of DEBUG, INFO, WARNING, ERROR", cfg.Logging.LogLevel)
	}
	if err := validateLogTarget(*cfg.Logging.AccessLog.Target); err != nil {
		return fail("logging.access_log.target: %v", err)
	}
	if f := cfg.Logging.AccessLog.Format; f != "json" && f != "text" {
		return fail("logging.access_log.format %q must be \"json\" or \"text\"", f)
	}
	if err := validateLogTarget(*cfg.Logging.ErrorLog.Target); err != nil {
		return fail("logging.error_log.target: %v", err)
	}
	return nil
}

func validateLogTarget(target string) error {
	if target == "" {
		return errors.New("target cannot be empty")
	}
	if IsFilePath(target) && !filepath.IsAbs(target) {
		return fmt.Errorf("file target %q must be an absolute path", target)
	}
	return nil
}

func resolveRelative(p, configPath string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
