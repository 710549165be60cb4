// Package config loads the language server settings from .scrustls.hcl (or a
// YAML equivalent). A missing file yields the defaults.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFileName   = ".scrustls.hcl"
	DefaultLanguageID = "scrust"
	DefaultLogLevel   = "info"
)

// 📝 Config file structure
type Config struct {
	// 🔤 language id used in the dynamic registration document selector
	LanguageID string `hcl:"language_id,optional" yaml:"language_id,omitempty"`
	// 📂 doublestar patterns for scrust files
	FilePatterns []string `hcl:"file_patterns,optional" yaml:"file_patterns,omitempty"`
	// 🔊 zerolog level name
	LogLevel string `hcl:"log_level,optional" yaml:"log_level,omitempty"`
	// 📡 forward server logs to the client as window/logMessage
	ClientLog bool `hcl:"client_log,optional" yaml:"client_log,omitempty"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LanguageID == "" {
		c.LanguageID = DefaultLanguageID
	}
	if len(c.FilePatterns) == 0 {
		c.FilePatterns = []string{"**/*.scrust"}
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Load reads the config at path from fsys. A missing file is not an error.
func Load(fsys afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, errors.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes config data. The format is picked from the file extension:
// .yaml and .yml are YAML, anything else is HCL.
func Parse(path string, data []byte) (*Config, error) {
	var cfg Config

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
	default:
		parser := hclparse.NewParser()
		hclFile, diags := parser.ParseHCL(data, path)
		if diags.HasErrors() {
			return nil, errors.Errorf("parsing HCL: %s", diags.Error())
		}

		diags = gohcl.DecodeBody(hclFile.Body, evalContext(os.Environ()), &cfg)
		if diags.HasErrors() {
			return nil, errors.Errorf("decoding HCL: %s", diags.Error())
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// evalContext exposes the process environment to HCL as env.NAME.
func evalContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}

	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": env,
		},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.LanguageID) == "" {
		return errors.Errorf("invalid config: language_id must not be empty")
	}

	for _, pattern := range c.FilePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("invalid config: bad file pattern %q", pattern)
		}
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Errorf("invalid config: log_level: %w", err)
	}

	return nil
}

// Level returns the configured zerolog level. Validate guarantees it parses.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Matches reports whether the slash-separated relative path matches any of
// the configured file patterns.
func (c *Config) Matches(path string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range c.FilePatterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}
