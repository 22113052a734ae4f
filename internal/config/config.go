// Package config loads the agent's XML-bound configuration: the
// coordinator connection, output directories, wrapper search path, and
// arbitrary name/value parameters merged verbatim into every wrapper
// environment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ControlCenterConfig holds the coordinator connection settings.
type ControlCenterConfig struct {
	ServerBaseURL string `xml:"serverBaseURL"`
	TokenID       string `xml:"tokenId"`
	TokenPass     string `xml:"tokenPass"`
}

// OutputConfig holds the local and coordinator-visible directory layout.
// The reportDir/productDir elements are legacy aliases still emitted by
// older coordinator-distributed configs; the canonical names win when
// both are present.
type OutputConfig struct {
	ReportBaseDir  string `xml:"reportBaseDir"`
	ProductBaseDir string `xml:"productBaseDir"`
	ReportBaseURL  string `xml:"reportBaseURL,omitempty"`
	ProductBaseURL string `xml:"productBaseURL,omitempty"`

	LegacyReportDir  string `xml:"reportDir,omitempty"`
	LegacyProductDir string `xml:"productDir,omitempty"`
}

// GenericConfig holds process-wide settings: logging and an optional
// process wrapper (e.g. a supervisor script prepended to every wrapper
// invocation).
type GenericConfig struct {
	LogFile        string `xml:"logFile,omitempty"`
	LogLevel       string `xml:"logLevel"`
	ProcessWrapper string `xml:"processWrapper,omitempty"`
	PidFile        string `xml:"pidFile,omitempty"`
}

// WrapperDirConfig is one configured wrapper base directory; repeated
// elements form the Run Factory's search path, in document order.
type WrapperDirConfig struct {
	Dir string `xml:"dir,attr"`
}

// ParameterConfig is one arbitrary name/value pair merged into every
// wrapper environment. Name must match [A-Za-z_][A-Za-z_0-9]*.
type ParameterConfig struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Config is the full agent configuration, bound directly from the XML
// document via struct tags.
type Config struct {
	XMLName       xml.Name           `xml:"config"`
	ControlCenter ControlCenterConfig `xml:"controlCenter"`
	Output        OutputConfig        `xml:"output"`
	Generic       GenericConfig       `xml:"generic"`
	Wrappers      []WrapperDirConfig  `xml:"wrappers"`
	Parameters    []ParameterConfig   `xml:"parameter"`

	SyncDelay time.Duration `xml:"-"`
}

var paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z_0-9]*$`)

// DefaultConfig returns a Config with sensible defaults; LoadFromFile
// unmarshals onto a copy of it so unspecified XML sections keep these
// values.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			ReportBaseDir:  "/var/lib/taskrunner/reports",
			ProductBaseDir: "/var/lib/taskrunner/products",
		},
		Generic: GenericConfig{
			LogLevel: "info",
			PidFile:  "db/runner.pid",
		},
		SyncDelay: 10 * time.Second,
	}
}

// LoadFromFile loads the XML configuration document at path and
// validates the invariants the reflective unmarshaller would otherwise
// enforce: a control center URL, at least one wrapper directory, and
// well-formed parameter names.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	defaults := DefaultConfig()
	if err := xml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Honor the legacy directory aliases only when the canonical element
	// was absent (the canonical name wins when both appear).
	if cfg.Output.LegacyReportDir != "" && cfg.Output.ReportBaseDir == defaults.Output.ReportBaseDir {
		cfg.Output.ReportBaseDir = cfg.Output.LegacyReportDir
	}
	if cfg.Output.LegacyProductDir != "" && cfg.Output.ProductBaseDir == defaults.Output.ProductBaseDir {
		cfg.Output.ProductBaseDir = cfg.Output.LegacyProductDir
	}

	if cfg.ControlCenter.ServerBaseURL == "" {
		return nil, fmt.Errorf("config: controlCenter.serverBaseURL is required")
	}
	if len(cfg.Wrappers) == 0 {
		return nil, fmt.Errorf("config: at least one wrappers dir is required")
	}
	seen := make(map[string]bool, len(cfg.Parameters))
	for _, p := range cfg.Parameters {
		if !paramNamePattern.MatchString(p.Name) {
			return nil, fmt.Errorf("config: invalid parameter name %q", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("config: duplicate parameter name %q", p.Name)
		}
		seen[p.Name] = true
	}

	return cfg, nil
}

// WrapperDirs returns the configured wrapper base directories in
// document order.
func (c *Config) WrapperDirs() []string {
	dirs := make([]string, len(c.Wrappers))
	for i, w := range c.Wrappers {
		dirs[i] = w.Dir
	}
	return dirs
}

// ParameterMap returns the arbitrary parameter block as a map, for
// merging into a task's wrapper environment.
func (c *Config) ParameterMap() map[string]string {
	out := make(map[string]string, len(c.Parameters))
	for _, p := range c.Parameters {
		out[p.Name] = p.Value
	}
	return out
}

// SetParameter overrides or adds a parameter, preserving document order
// on first insertion. Used by the local YAML override loader.
func (c *Config) SetParameter(name, value string) {
	for i, p := range c.Parameters {
		if p.Name == name {
			c.Parameters[i].Value = value
			return
		}
	}
	c.Parameters = append(c.Parameters, ParameterConfig{Name: name, Value: value})
}

// LoadFromEnv applies SF_-prefixed environment variable overrides, the
// highest-precedence layer above the XML config and any local YAML
// override.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SF_CC_URL"); v != "" {
		cfg.ControlCenter.ServerBaseURL = v
	}
	if v := os.Getenv("SF_TOKEN_ID"); v != "" {
		cfg.ControlCenter.TokenID = v
	}
	if v := os.Getenv("SF_TOKEN_PASS"); v != "" {
		cfg.ControlCenter.TokenPass = v
	}
	if v := os.Getenv("SF_REPORT_BASE_DIR"); v != "" {
		cfg.Output.ReportBaseDir = v
	}
	if v := os.Getenv("SF_PRODUCT_BASE_DIR"); v != "" {
		cfg.Output.ProductBaseDir = v
	}
	if v := os.Getenv("SF_LOG_LEVEL"); v != "" {
		cfg.Generic.LogLevel = v
	}
	if v := os.Getenv("SF_LOG_FILE"); v != "" {
		cfg.Generic.LogFile = v
	}
	if v := os.Getenv("SF_PROCESS_WRAPPER"); v != "" {
		cfg.Generic.ProcessWrapper = v
	}
	if v := os.Getenv("SF_PID_FILE"); v != "" {
		cfg.Generic.PidFile = v
	}
	if v := os.Getenv("SF_SYNC_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SyncDelay = d
		} else if n, err := strconv.Atoi(v); err == nil {
			cfg.SyncDelay = time.Duration(n) * time.Second
		}
	}
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "SF_PARAM_") {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		name := strings.TrimPrefix(parts[0], "SF_PARAM_")
		if len(parts) == 2 && paramNamePattern.MatchString(name) {
			cfg.SetParameter(name, parts[1])
		}
	}
}
