package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the CLI and the HTTP service.
// Zero values mean "unspecified"; WithDefaults fills them in.
type Config struct {
	Home             string   `json:"home" yaml:"home" toml:"home"`
	SourceURL        string   `json:"source_url" yaml:"source_url" toml:"source_url"`
	WeightsURL       string   `json:"weights_url" yaml:"weights_url" toml:"weights_url"`
	PythonArchiveURL string   `json:"python_archive_url" yaml:"python_archive_url" toml:"python_archive_url"`
	Shell            string   `json:"shell" yaml:"shell" toml:"shell"`
	Addr             string   `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel         string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat        string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	QueryBackend     string   `json:"query_backend" yaml:"query_backend" toml:"query_backend"`
	InprocContext    int      `json:"inproc_context" yaml:"inproc_context" toml:"inproc_context"`
	InprocThreads    int      `json:"inproc_threads" yaml:"inproc_threads" toml:"inproc_threads"`
	CORSOrigins      []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	MaxBodyBytes     int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	EventBuffer      int      `json:"event_buffer" yaml:"event_buffer" toml:"event_buffer"`

	// QueryTimeoutSeconds bounds one /query request; 0 disables the limit.
	QueryTimeoutSeconds int `json:"query_timeout_seconds" yaml:"query_timeout_seconds" toml:"query_timeout_seconds"`
}

const (
	DefaultHome             = "~/llama.cpp"
	DefaultSourceURL        = "https://github.com/ggerganov/llama.cpp.git"
	DefaultWeightsURL       = "https://agi.gpt4.org/llama/LLaMA"
	DefaultPythonArchiveURL = "https://github.com/indygreg/python-build-standalone/releases/download/20230116/cpython-3.10.9+20230116-x86_64-pc-windows-msvc-shared-install_only.tar.gz"
	DefaultAddr             = ":8080"

	BackendProcess = "process"
	BackendInproc  = "inproc"
)

// Defaults returns a fully populated configuration.
func Defaults() Config {
	return Config{
		Home:             DefaultHome,
		SourceURL:        DefaultSourceURL,
		WeightsURL:       DefaultWeightsURL,
		PythonArchiveURL: DefaultPythonArchiveURL,
		Addr:             DefaultAddr,
		LogLevel:         "info",
		LogFormat:        "console",
		QueryBackend:     BackendProcess,
		InprocContext:    2048,
		InprocThreads:    4,
		MaxBodyBytes:     1 << 20,
		EventBuffer:      256,
	}
}

// WithDefaults returns c with every unset field taken from Defaults.
func (c Config) WithDefaults() Config {
	d := Defaults()
	if c.Home == "" {
		c.Home = d.Home
	}
	if c.SourceURL == "" {
		c.SourceURL = d.SourceURL
	}
	if c.WeightsURL == "" {
		c.WeightsURL = d.WeightsURL
	}
	if c.PythonArchiveURL == "" {
		c.PythonArchiveURL = d.PythonArchiveURL
	}
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.QueryBackend == "" {
		c.QueryBackend = d.QueryBackend
	}
	if c.InprocContext <= 0 {
		c.InprocContext = d.InprocContext
	}
	if c.InprocThreads <= 0 {
		c.InprocThreads = d.InprocThreads
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	switch c.QueryBackend {
	case "", BackendProcess, BackendInproc:
	default:
		return fmt.Errorf("query_backend must be %q or %q, got %q", BackendProcess, BackendInproc, c.QueryBackend)
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	if c.QueryTimeoutSeconds < 0 {
		return fmt.Errorf("query_timeout_seconds must not be negative, got %d", c.QueryTimeoutSeconds)
	}
	return nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LLAMACTL_"

// ApplyEnv overrides fields from LLAMACTL_* variables looked up via getenv.
// CORS origins are comma separated.
func ApplyEnv(c Config, getenv func(string) string) (Config, error) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}
	str("HOME", &c.Home)
	str("SOURCE_URL", &c.SourceURL)
	str("WEIGHTS_URL", &c.WeightsURL)
	str("PYTHON_ARCHIVE_URL", &c.PythonArchiveURL)
	str("SHELL", &c.Shell)
	str("ADDR", &c.Addr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("QUERY_BACKEND", &c.QueryBackend)

	ints := []struct {
		key string
		dst *int
	}{
		{"INPROC_CONTEXT", &c.InprocContext},
		{"INPROC_THREADS", &c.InprocThreads},
		{"EVENT_BUFFER", &c.EventBuffer},
		{"QUERY_TIMEOUT_SECONDS", &c.QueryTimeoutSeconds},
	}
	for _, it := range ints {
		v := strings.TrimSpace(getenv(EnvPrefix + it.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%s%s: %w", EnvPrefix, it.key, err)
		}
		*it.dst = n
	}
	if v := strings.TrimSpace(getenv(EnvPrefix + "MAX_BODY_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, fmt.Errorf("%sMAX_BODY_BYTES: %w", EnvPrefix, err)
		}
		c.MaxBodyBytes = n
	}
	if v := strings.TrimSpace(getenv(EnvPrefix + "CORS_ORIGINS")); v != "" {
		c.CORSOrigins = splitCSV(v)
	}
	return c, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
