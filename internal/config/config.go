package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"
)

const (
	// PassthroughPositional collects trailing positional arguments; tool flags
	// may still appear after them.
	PassthroughPositional = "positional"
	// PassthroughRemainder hands everything after the first positional
	// argument to cowbuilder untouched, flags included.
	PassthroughRemainder = "remainder"

	DefaultCacheRoot     = "/var/cache/pbuilder"
	DefaultEscalator     = "sudo"
	DefaultCowbuilder    = "cowbuilder"
	DefaultCowbuilderBin = "/usr/sbin/cowbuilder"
	DefaultArchitecture  = "amd64"

	configFileName = "config.yml"
	schemaURL      = "config.schema.json"
)

//go:embed schema/config.schema.json
var configSchema string

// Variant captures what differs between the tool flavours built from this
// repository. PassthroughStyle decides how the command line is parsed, so it
// lives here rather than in the config file.
type Variant struct {
	Name               string
	Description        string
	BindMountNamespace string
	PassthroughStyle   string
}

var (
	VariantCowbuilderAide = Variant{
		Name:               "cowbuilder-aide",
		Description:        "cowbuilder-aide: A tool to simplify chroot environment creation and management using cowbuilder",
		BindMountNamespace: ".cowbuilder-aide",
		PassthroughStyle:   PassthroughPositional,
	}
	VariantChrootCowbuilder = Variant{
		Name:               "chroot-cowbuilder",
		Description:        "chroot-cowbuilder: A tool to simplify chroot environment creation and management using cowbuilder",
		BindMountNamespace: ".chroot-cowbuilder",
		PassthroughStyle:   PassthroughRemainder,
	}
)

// GlobalConfig is the on-disk configuration.
type GlobalConfig struct {
	CacheRoot           string           `yaml:"cacheRoot"`
	Escalator           string           `yaml:"escalator"`
	Cowbuilder          CowbuilderConfig `yaml:"cowbuilder"`
	DefaultArchitecture string           `yaml:"defaultArchitecture"`
	BindMountNamespace  string           `yaml:"bindMountNamespace"`
	FailOnMissing       bool             `yaml:"failOnMissing"`
	Logging             LoggingConfig    `yaml:"logging"`
}

// CowbuilderConfig describes how the external tool is located and called.
type CowbuilderConfig struct {
	// Command is the name handed to the escalator.
	Command string `yaml:"command"`
	// Path is what must resolve on the host before anything runs.
	Path string `yaml:"path"`
	// ExtraArgs is a shell-quoted string of arguments placed before any
	// user passthrough arguments.
	ExtraArgs string `yaml:"extraArgs"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultGlobalConfig returns the built-in configuration for a variant.
func DefaultGlobalConfig(v Variant) *GlobalConfig {
	return &GlobalConfig{
		CacheRoot: DefaultCacheRoot,
		Escalator: DefaultEscalator,
		Cowbuilder: CowbuilderConfig{
			Command: DefaultCowbuilder,
			Path:    DefaultCowbuilderBin,
		},
		DefaultArchitecture: DefaultArchitecture,
		BindMountNamespace:  v.BindMountNamespace,
		Logging:             LoggingConfig{Level: "info"},
	}
}

// FindConfigFile looks for <variant>/config.yml in the XDG config
// directories. It returns "" when no file exists.
func FindConfigFile(v Variant) string {
	path, err := xdg.SearchConfigFile(filepath.Join(v.Name, configFileName))
	if err != nil {
		return ""
	}
	return path
}

// LoadGlobalConfig reads the configuration at path, or the XDG default when
// path is empty. A missing default file yields the built-in defaults; a
// missing explicit file is an error.
func LoadGlobalConfig(path string, v Variant) (*GlobalConfig, error) {
	if path == "" {
		path = FindConfigFile(v)
		if path == "" {
			return DefaultGlobalConfig(v), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg, err := parseGlobalConfig(data, v)
	if err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}
	return cfg, nil
}

func parseGlobalConfig(data []byte, v Variant) (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig(v)
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	if err := validateAgainstSchema(data); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateAgainstSchema(data []byte) error {
	jsonData, err := sigsyaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if doc == nil {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(configSchema)); err != nil {
		return fmt.Errorf("loading config schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Validate checks the values the schema cannot express.
func (c *GlobalConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.CacheRoot) == "" {
		errs = append(errs, errors.New("cacheRoot must not be empty"))
	}
	if c.Cowbuilder.Command == "" {
		errs = append(errs, errors.New("cowbuilder.command must not be empty"))
	}
	if c.BindMountNamespace == "" || strings.Contains(c.BindMountNamespace, "..") {
		errs = append(errs, fmt.Errorf("invalid bindMountNamespace %q", c.BindMountNamespace))
	}
	return errors.Join(errs...)
}
