package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/m4xw311/aiteam/errors"
	"gopkg.in/yaml.v3"
)

// Dir is the per-user and per-project configuration directory name.
const Dir = ".aiteam"

// Defaults applied when the corresponding key is absent or zero.
const (
	DefaultMaxContinuations = 25
	DefaultCommandTimeout   = 10 * time.Minute
	DefaultOllamaHost       = "http://localhost:11434"
	DefaultTerminalTool     = "run_command"
)

// DefaultIgnore lists the project-tree globs that are always excluded.
var DefaultIgnore = []string{
	".git", ".git/**",
	"node_modules", "node_modules/**",
	"vendor", "vendor/**",
	"dist", "dist/**",
	"build", "build/**",
	"out", "out/**",
	Dir, Dir + "/**",
}

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Terminal selects how execute_command directives are run. An empty
// MCPServer means local execution.
type Terminal struct {
	MCPServer string `yaml:"mcp_server"`
	Tool      string `yaml:"tool"`
}

type Config struct {
	ActiveAgent          string           `yaml:"active_agent"`
	Agents               []AgentProfile   `yaml:"agents"`
	MaxContinuations     int              `yaml:"max_continuations"`
	ReviewTimeout        time.Duration    `yaml:"review_timeout"`
	CommandTimeout       time.Duration    `yaml:"command_timeout"`
	StrictDirectives     bool             `yaml:"strict_directives"`
	Ignore               []string         `yaml:"ignore"`
	AllowedCommands      []string         `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`
	Terminal             Terminal         `yaml:"terminal"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	OllamaHost           string           `yaml:"ollama_host"`
	LogLevel             string           `yaml:"log_level"`
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence. Saved agent profiles
// from the project agents file are merged last.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	home, err := os.UserHomeDir()
	if err == nil {
		if err := loadIfExists(filepath.Join(home, Dir, "config.yaml"), cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading user config")
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	if err := LoadInto(filepath.Join(wd, Dir), cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadInto overlays dir/config.yaml and dir/agents.yaml onto cfg.
func LoadInto(dir string, cfg *Config) error {
	if err := loadIfExists(filepath.Join(dir, "config.yaml"), cfg); err != nil {
		return errors.Wrapf(err, "error loading project config")
	}
	saved, err := loadAgents(filepath.Join(dir, AgentsFile))
	if err != nil {
		return errors.Wrapf(err, "error loading saved agents")
	}
	for _, p := range saved {
		cfg.UpsertAgent(p)
	}
	return nil
}

// ApplyDefaults fills unset values and appends the built-in ignore globs.
func (c *Config) ApplyDefaults() {
	if c.MaxContinuations <= 0 {
		c.MaxContinuations = DefaultMaxContinuations
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.OllamaHost == "" {
		c.OllamaHost = DefaultOllamaHost
	}
	if c.Terminal.Tool == "" {
		c.Terminal.Tool = DefaultTerminalTool
	}
	c.Ignore = appendMissing(c.Ignore, DefaultIgnore...)
	c.FilesystemAccess.Hidden = appendMissing(c.FilesystemAccess.Hidden, Dir, Dir+"/**")
}

// MCPServer finds a configured MCP server by name.
func (c *Config) MCPServer(name string) (*MCPServer, error) {
	for i := range c.AdditionalMCPServers {
		if c.AdditionalMCPServers[i].Name == name {
			return &c.AdditionalMCPServers[i], nil
		}
	}
	return nil, errors.New("MCP server '%s' is not configured", name)
}

func loadIfExists(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	// Unmarshal overwrites only the keys present in the file, which gives
	// the project file precedence over the user file.
	return yaml.Unmarshal(data, cfg)
}

func appendMissing(list []string, values ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		seen[v] = true
	}
	for _, v := range values {
		if !seen[v] {
			list = append(list, v)
			seen[v] = true
		}
	}
	return list
}
