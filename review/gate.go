// Package review holds the single file change awaiting a human decision and
// renders it as a diff.
package review

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/aiteam/errors"
)

// Decision is the human verdict on a pending change.
type Decision int

const (
	Accept Decision = iota + 1
	Reject
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	}
	return "unknown"
}

// ParseDecision understands accept/reject and the usual y/n shorthands.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "accepted", "a", "y", "yes":
		return Accept, nil
	case "reject", "rejected", "r", "n", "no":
		return Reject, nil
	}
	return 0, errors.New("unknown review decision '%s'", s)
}

// PendingChange is a proposed write that has not been applied.
type PendingChange struct {
	ID       string
	Path     string
	Content  string
	Original string
	StagedAt time.Time
}

// Gate holds at most one PendingChange.
type Gate struct {
	mu      sync.Mutex
	pending *PendingChange
}

func NewGate() *Gate {
	return &Gate{}
}

// Stage records a proposed write. It fails with errors.ErrChangePending when
// another change is still waiting.
func (g *Gate) Stage(path, content, original string) (PendingChange, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return *g.pending, errors.ErrChangePending
	}
	g.pending = &PendingChange{
		ID:       uuid.NewString(),
		Path:     path,
		Content:  content,
		Original: original,
		StagedAt: time.Now(),
	}
	return *g.pending, nil
}

// Pending returns the waiting change, if any.
func (g *Gate) Pending() (PendingChange, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return PendingChange{}, false
	}
	return *g.pending, true
}

// Take removes and returns the waiting change.
func (g *Gate) Take() (PendingChange, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return PendingChange{}, false
	}
	p := *g.pending
	g.pending = nil
	return p, true
}

// Clear drops the waiting change without returning it.
func (g *Gate) Clear() {
	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
}
