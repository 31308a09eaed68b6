package config

import (
	"os"
	"strings"
	"sync"
	"unicode"
)

// FallbackKeyEnv is consulted when no agent-specific key is set.
const FallbackKeyEnv = "AITEAM_API_KEY"

// CredentialStore retrieves the API key for an agent profile. Keys are kept
// apart from profiles so that profiles can be listed and saved freely.
type CredentialStore interface {
	// Credential returns the key for agentID, or "" when none is known.
	Credential(agentID string) (string, error)
}

// EnvCredentials reads AITEAM_KEY_<ID>, then AITEAM_API_KEY.
type EnvCredentials struct{}

func (EnvCredentials) Credential(agentID string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(KeyEnvName(agentID))); v != "" {
		return v, nil
	}
	return strings.TrimSpace(os.Getenv(FallbackKeyEnv)), nil
}

// KeyEnvName maps an agent ID to its environment variable.
func KeyEnvName(agentID string) string {
	var b strings.Builder
	b.WriteString("AITEAM_KEY_")
	for _, r := range agentID {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// MemoryCredentials holds keys handed over by a host for the lifetime of the
// process, falling back to another store.
type MemoryCredentials struct {
	mu       sync.RWMutex
	keys     map[string]string
	fallback CredentialStore
}

func NewMemoryCredentials(fallback CredentialStore) *MemoryCredentials {
	return &MemoryCredentials{keys: make(map[string]string), fallback: fallback}
}

func (m *MemoryCredentials) Set(agentID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[agentID] = strings.TrimSpace(key)
}

func (m *MemoryCredentials) Credential(agentID string) (string, error) {
	m.mu.RLock()
	key, ok := m.keys[agentID]
	m.mu.RUnlock()
	if ok && key != "" {
		return key, nil
	}
	if m.fallback == nil {
		return "", nil
	}
	return m.fallback.Credential(agentID)
}
