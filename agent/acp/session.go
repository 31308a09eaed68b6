package acp

import (
	"sort"
	"sync"

	"github.com/m4xw311/aiteam/acp"
	"github.com/m4xw311/aiteam/agent"
	"github.com/m4xw311/aiteam/config"
	"github.com/m4xw311/aiteam/logging"
	"github.com/m4xw311/aiteam/review"
	"github.com/m4xw311/aiteam/session"
	"github.com/m4xw311/aiteam/tools"
)

// hostSession binds one ACP session to its controller. It is also the
// controller's Reviewer: proposed changes go out as review_request updates.
type hostSession struct {
	id     string
	conn   *acp.Conn
	cwd    string
	ctrl   *agent.Controller
	gate   *review.Gate
	editor *linkEditor

	mu    sync.Mutex
	agent string
}

func (hs *hostSession) cycle() agent.CycleSession {
	return agent.CycleSession{AgentID: hs.agentID(), Review: hs.gate}
}

func (hs *hostSession) agentID() string {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.agent
}

func (hs *hostSession) setAgent(id string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.agent = id
}

func (hs *hostSession) callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnFragment: func(text string) {
			hs.update("agent_message_chunk", map[string]any{"content": textContent(text)})
		},
		OnTurn: func(turn session.Turn) {
			// The assistant reply was already streamed and the prompt came
			// from the client.
			if turn.Role == session.RoleSystem {
				hs.sendTurn(turn)
			}
		},
		OnInvocation: func(inv tools.Invocation) {
			hs.update("tool_call", map[string]any{"toolCall": describeInvocation(inv)})
		},
		OnStateChange: func(from, to agent.State) {
			hs.update("cycle_state", map[string]any{"state": to.String(), "previous": from.String()})
		},
	}
}

// PresentDiff sends the proposed change to the client for a decision.
func (hs *hostSession) PresentDiff(path, current, proposed string) {
	update := map[string]any{
		"path":    path,
		"oldText": current,
		"newText": proposed,
		"diff":    review.UnifiedDiff(path, current, proposed),
	}
	if change, ok := hs.gate.Pending(); ok && change.Path == path {
		update["changeId"] = change.ID
	}
	hs.update("review_request", update)
}

// sendTurn replays a stored turn as the update a live cycle would have sent.
func (hs *hostSession) sendTurn(turn session.Turn) {
	switch turn.Role {
	case session.RoleUser:
		hs.update("user_message_chunk", map[string]any{"content": textContent(turn.Content)})
	case session.RoleAssistant:
		if turn.Content != "" {
			hs.update("agent_message_chunk", map[string]any{"content": textContent(turn.Content)})
		}
	case session.RoleSystem:
		hs.update("system_message", map[string]any{"content": textContent(turn.Content)})
	}
}

func (hs *hostSession) update(kind string, fields map[string]any) {
	fields["sessionUpdate"] = kind
	err := hs.conn.Notify("session/update", map[string]any{
		"sessionId": hs.id,
		"update":    fields,
	})
	if err != nil {
		logging.Error("session update failed", "session", hs.id, "update", kind, "error", err)
	}
}

func textContent(text string) map[string]string {
	return map[string]string{"type": "text", "text": text}
}

// linkEditor exposes the file linked in the latest prompt as the open file.
type linkEditor struct {
	mu   sync.Mutex
	path string
	text string
	ok   bool
}

func (e *linkEditor) set(path, text string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.path, e.text, e.ok = path, text, ok
}

func (e *linkEditor) OpenFile() (string, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path, e.text, e.ok
}

// registry guards the profile list shared by all sessions. Profiles can be
// saved while cycles look them up.
type registry struct {
	mu  sync.RWMutex
	cfg *config.Config
}

func (r *registry) Agent(id string) (config.AgentProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Agent(id)
}

func (r *registry) list() ([]config.AgentProfile, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := append([]config.AgentProfile{}, r.cfg.Agents...)
	sort.SliceStable(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, r.cfg.ActiveAgent
}

func (r *registry) save(p config.AgentProfile, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.UpsertAgent(p)
	return r.cfg.SaveAgents(dir)
}
