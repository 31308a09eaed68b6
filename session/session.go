package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// HistoryLimit is the maximum number of turns kept; older turns are evicted
// first.
const HistoryLimit = 50

// recentTurns is how many turns the context block summarizes.
const recentTurns = 5

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the conversation state of one session: a bounded history and the
// project plan. It is safe for concurrent readers while a cycle appends.
type Store struct {
	Name string `json:"name"`

	mu    sync.RWMutex
	turns []Turn
	plan  []PlanTask
	path  string
	now   func() time.Time
}

type storeFile struct {
	Name  string     `json:"name"`
	Turns []Turn     `json:"turns"`
	Plan  []PlanTask `json:"plan"`
}

// New creates an empty session saved under .aiteam/sessions.
func New(name string) (*Store, error) {
	return NewIn(DefaultDir(), name)
}

// NewIn creates an empty session saved under dir.
func NewIn(dir, name string) (*Store, error) {
	path, err := sessionPath(dir, name)
	if err != nil {
		return nil, err
	}
	return &Store{Name: name, path: path, now: time.Now}, nil
}

// Load loads an existing session from .aiteam/sessions.
func Load(name string) (*Store, error) {
	return LoadFrom(DefaultDir(), name)
}

// LoadFrom loads an existing session from dir.
func LoadFrom(dir, name string) (*Store, error) {
	path, err := sessionPath(dir, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read session file %s: %w", path, err)
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("could not parse session file %s: %w", path, err)
	}
	s := &Store{Name: f.Name, path: path, now: time.Now, plan: f.Plan}
	if s.Name == "" {
		s.Name = name
	}
	if len(f.Turns) > HistoryLimit {
		f.Turns = f.Turns[len(f.Turns)-HistoryLimit:]
	}
	s.turns = f.Turns
	return s, nil
}

// DefaultDir is where sessions live relative to the working directory.
func DefaultDir() string {
	return filepath.Join(".aiteam", "sessions")
}

// Save writes the current session state to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	f := storeFile{Name: s.Name, Turns: s.turns, Plan: s.plan}
	data, err := json.MarshalIndent(f, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// AppendMessage appends a turn, evicting the oldest one when the history is
// full. It returns the stored turn.
func (s *Store) AppendMessage(role Role, content string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := Turn{Role: role, Content: content, CreatedAt: s.clock()}
	if len(s.turns) >= HistoryLimit {
		s.turns = slices.Delete(s.turns, 0, len(s.turns)-HistoryLimit+1)
	}
	s.turns = append(s.turns, turn)
	return turn
}

// History returns a copy of the turns, oldest first.
func (s *Store) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.turns)
}

// Len returns the number of turns held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// SetPlan replaces the plan wholesale.
func (s *Store) SetPlan(tasks []PlanTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = slices.Clone(tasks)
}

// Plan returns a copy of the plan.
func (s *Store) Plan() []PlanTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.plan)
}

// RenderContextBlock summarizes the plan and the most recent turns. It is
// rebuilt on every call.
func (s *Store) RenderContextBlock() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := "None"
	var pending []string
	for _, t := range s.plan {
		switch t.Status {
		case StatusActive:
			if active == "None" {
				active = t.Title
			}
		case StatusPending:
			pending = append(pending, "- "+t.Title)
		}
	}
	pendingText := "No pending tasks."
	if len(pending) > 0 {
		pendingText = strings.Join(pending, "\n")
	}

	recent := s.turns
	if len(recent) > recentTurns {
		recent = recent[len(recent)-recentTurns:]
	}
	lines := make([]string, 0, len(recent))
	for _, t := range recent {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(t.Role)), t.Content))
	}

	var b strings.Builder
	b.WriteString("[PROJECT STATE]\n")
	fmt.Fprintf(&b, "Active Task: %s\n", active)
	b.WriteString("Pending Tasks:\n")
	b.WriteString(pendingText)
	b.WriteString("\n\n[RECENT HISTORY]\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
	return b.String()
}

func (s *Store) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func sessionPath(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create session directory: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.json", name)), nil
}
