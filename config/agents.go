package config

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/aiteam/errors"
	"gopkg.in/yaml.v3"
)

// AgentsFile holds profiles saved from a host, next to config.yaml.
const AgentsFile = "agents.yaml"

// AgentProfile describes one specialist the user can talk to. The API key is
// deliberately not part of it; see CredentialStore.
type AgentProfile struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Role         string `yaml:"role" json:"role"`
	SystemPrompt string `yaml:"system_prompt" json:"systemPrompt"`
	Model        string `yaml:"model" json:"model"`
	Provider     string `yaml:"provider,omitempty" json:"provider,omitempty"`
}

// Agent finds a profile by ID. An empty ID selects ActiveAgent, and failing
// that the first profile.
func (c *Config) Agent(id string) (AgentProfile, error) {
	if id == "" {
		id = c.ActiveAgent
	}
	if id == "" && len(c.Agents) > 0 {
		return c.Agents[0], nil
	}
	for _, p := range c.Agents {
		if p.ID == id {
			return p, nil
		}
	}
	return AgentProfile{}, errors.Configuration(errors.New("agent profile '%s' not found", id))
}

// UpsertAgent replaces the profile with the same ID or appends it.
func (c *Config) UpsertAgent(p AgentProfile) {
	for i := range c.Agents {
		if c.Agents[i].ID == p.ID {
			c.Agents[i] = p
			return
		}
	}
	c.Agents = append(c.Agents, p)
}

// SaveAgents writes all profiles to dir/agents.yaml.
func (c *Config) SaveAgents(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "could not create config directory")
	}
	data, err := yaml.Marshal(struct {
		Agents []AgentProfile `yaml:"agents"`
	}{c.Agents})
	if err != nil {
		return errors.Wrapf(err, "failed to serialize agents")
	}
	return os.WriteFile(filepath.Join(dir, AgentsFile), data, 0644)
}

func loadAgents(path string) ([]AgentProfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var file struct {
		Agents []AgentProfile `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Agents, nil
}
