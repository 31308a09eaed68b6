// Package acp serves aiteam agents over the Agent Client Protocol so editors
// and webview panels can drive them through JSON-RPC on stdio.
package acp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/m4xw311/aiteam/acp"
	"github.com/m4xw311/aiteam/agent"
	"github.com/m4xw311/aiteam/config"
	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/llm"
	"github.com/m4xw311/aiteam/logging"
	"github.com/m4xw311/aiteam/review"
	"github.com/m4xw311/aiteam/session"
	"github.com/m4xw311/aiteam/tools"
)

// ProtocolVersion is the ACP version this host speaks.
const ProtocolVersion = 1

// maxLinkedFile bounds the open-file context taken from a resource link.
const maxLinkedFile = 50000

// Options wires the host to its collaborators. Every session shares them.
type Options struct {
	Config      *config.Config
	Model       llm.Client
	FS          tools.FileSystem
	Terminal    tools.Terminal
	Tree        tools.ProjectTree
	Credentials config.CredentialStore

	// SessionDir holds the session files. Defaults to .aiteam/sessions.
	SessionDir string
	// ConfigDir receives agents.yaml on agent/save. Defaults to .aiteam.
	ConfigDir string
}

// Server is the ACP host: one Controller per session, driven by JSON-RPC
// calls from an editor or webview.
type Server struct {
	ctx      context.Context
	opts     Options
	conn     *acp.Conn
	profiles *registry
	creds    *config.MemoryCredentials

	mu       sync.Mutex
	sessions map[string]*hostSession
	wg       sync.WaitGroup
}

// Run serves ACP on in/out until in is exhausted, then waits for running
// cycles to finish. Nothing but JSON-RPC frames is written to out.
func Run(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	s := NewServer(ctx, opts, in, out)
	return s.Serve()
}

func NewServer(ctx context.Context, opts Options, in io.Reader, out io.Writer) *Server {
	if opts.Config == nil {
		opts.Config = &config.Config{}
	}
	if opts.SessionDir == "" {
		opts.SessionDir = session.DefaultDir()
	}
	if opts.ConfigDir == "" {
		opts.ConfigDir = config.Dir
	}
	fallback := opts.Credentials
	if fallback == nil {
		fallback = config.EnvCredentials{}
	}
	return &Server{
		ctx:      ctx,
		opts:     opts,
		conn:     acp.NewConn(in, out),
		profiles: &registry{cfg: opts.Config},
		creds:    config.NewMemoryCredentials(fallback),
		sessions: make(map[string]*hostSession),
	}
}

func (s *Server) Serve() error {
	logging.Info("acp host started")
	defer s.wg.Wait()

	for {
		payload, err := s.conn.ReadMessage()
		if err == io.EOF {
			logging.Info("acp input closed")
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "ACP read error")
		}

		req, err := acp.ParseRequest(payload)
		if err != nil {
			logging.Warn("dropping malformed frame", "error", err)
			s.conn.RespondError(req.ID, acp.CodeParseError, "Parse error", err.Error())
			continue
		}
		s.handle(&req)
	}
}

func (s *Server) handle(req *acp.Request) {
	logging.Debug("acp request", "method", req.Method)
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "session/new":
		s.handleSessionNew(req)
	case "session/load":
		s.handleSessionLoad(req)
	case "session/prompt":
		s.handleSessionPrompt(req)
	case "session/review":
		s.handleSessionReview(req)
	case "session/cancel":
		s.handleSessionCancel(req)
	case "session/plan":
		s.handleSessionPlan(req)
	case "agent/list":
		s.handleAgentList(req)
	case "agent/save":
		s.handleAgentSave(req)
	default:
		if !req.IsNotification() {
			s.conn.RespondError(req.ID, acp.CodeMethodNotFound, "Method not found", req.Method)
		}
	}
}

func (s *Server) handleInitialize(req *acp.Request) {
	s.respond(req, map[string]any{
		"protocolVersion": ProtocolVersion,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	})
}

type sessionNewParams struct {
	Cwd     string `json:"cwd"`
	AgentID string `json:"agentId"`
}

func (s *Server) handleSessionNew(req *acp.Request) {
	var p sessionNewParams
	if !s.decode(req, &p) {
		return
	}
	id := uuid.NewString()
	store, err := session.NewIn(s.opts.SessionDir, id)
	if err != nil {
		s.fail(req, acp.CodeInternalError, err)
		return
	}
	hs := s.attach(id, store, p.AgentID, p.Cwd)
	logging.Info("session created", "session", id, "agent", hs.agentID())
	s.respond(req, map[string]any{"sessionId": id})
}

type sessionLoadParams struct {
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd"`
	AgentID   string `json:"agentId"`
}

func (s *Server) handleSessionLoad(req *acp.Request) {
	var p sessionLoadParams
	if !s.decode(req, &p) {
		return
	}

	hs, ok := s.session(p.SessionID)
	if !ok {
		store, err := session.LoadFrom(s.opts.SessionDir, p.SessionID)
		if err != nil {
			s.fail(req, acp.CodeInvalidParams, errors.Wrapf(err, "session not found"))
			return
		}
		hs = s.attach(p.SessionID, store, p.AgentID, p.Cwd)
	}

	history := hs.ctrl.Store().History()
	logging.Info("replaying session", "session", p.SessionID, "turns", len(history))
	for _, turn := range history {
		hs.sendTurn(turn)
	}
	s.respond(req, nil)
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URI  string `json:"uri,omitempty"`
	Name string `json:"name,omitempty"`
}

type sessionPromptParams struct {
	SessionID string         `json:"sessionId"`
	AgentID   string         `json:"agentId"`
	Prompt    []contentBlock `json:"prompt"`
}

func (s *Server) handleSessionPrompt(req *acp.Request) {
	var p sessionPromptParams
	if !s.decode(req, &p) {
		return
	}
	hs, ok := s.session(p.SessionID)
	if !ok {
		s.unknownSession(req)
		return
	}

	text := promptText(p.Prompt)
	path, content, linked := linkedFile(p.Prompt, hs.cwd)
	sess := hs.cycle()
	if p.AgentID != "" {
		sess.AgentID = p.AgentID
	}
	// The agent and open file only change for a prompt the controller takes.
	sess.OnAdmit = func() {
		hs.editor.set(path, content, linked)
		hs.setAgent(sess.AgentID)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := hs.ctrl.Submit(s.ctx, sess, text)
		s.finishCycle(req, hs, err)
	}()
}

type sessionReviewParams struct {
	SessionID string `json:"sessionId"`
	Decision  string `json:"decision"`
}

func (s *Server) handleSessionReview(req *acp.Request) {
	var p sessionReviewParams
	if !s.decode(req, &p) {
		return
	}
	hs, ok := s.session(p.SessionID)
	if !ok {
		s.unknownSession(req)
		return
	}
	decision, err := review.ParseDecision(p.Decision)
	if err != nil {
		s.fail(req, acp.CodeInvalidParams, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := hs.ctrl.Resolve(s.ctx, hs.cycle(), decision)
		s.finishCycle(req, hs, err)
	}()
}

type sessionCancelParams struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleSessionCancel(req *acp.Request) {
	var p sessionCancelParams
	if !s.decode(req, &p) {
		return
	}
	hs, ok := s.session(p.SessionID)
	if !ok {
		s.unknownSession(req)
		return
	}
	hs.ctrl.Cancel()
	s.respond(req, nil)
}

type planTaskParams struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

type sessionPlanParams struct {
	SessionID string           `json:"sessionId"`
	Tasks     []planTaskParams `json:"tasks"`
}

func (s *Server) handleSessionPlan(req *acp.Request) {
	var p sessionPlanParams
	if !s.decode(req, &p) {
		return
	}
	hs, ok := s.session(p.SessionID)
	if !ok {
		s.unknownSession(req)
		return
	}

	tasks := make([]session.PlanTask, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			s.fail(req, acp.CodeInvalidParams, errors.New("plan task has no title"))
			return
		}
		task := session.NewTask(title)
		if t.ID != "" {
			task.ID = t.ID
		}
		if t.Status != "" {
			task.Status = session.TaskStatus(t.Status)
		}
		if !task.Status.Valid() {
			s.fail(req, acp.CodeInvalidParams, errors.New("unknown task status '%s'", t.Status))
			return
		}
		tasks = append(tasks, task)
	}

	store := hs.ctrl.Store()
	store.SetPlan(tasks)
	if err := store.Save(); err != nil {
		logging.Warn("failed to save session", "session", hs.id, "error", err)
	}
	s.respond(req, map[string]any{"tasks": store.Plan()})
}

func (s *Server) handleAgentList(req *acp.Request) {
	agents, active := s.profiles.list()
	s.respond(req, map[string]any{"agents": agents, "activeAgent": active})
}

type agentSaveParams struct {
	Agent  config.AgentProfile `json:"agent"`
	APIKey string              `json:"apiKey"`
}

func (s *Server) handleAgentSave(req *acp.Request) {
	var p agentSaveParams
	if !s.decode(req, &p) {
		return
	}
	p.Agent.ID = strings.TrimSpace(p.Agent.ID)
	if p.Agent.ID == "" {
		s.fail(req, acp.CodeInvalidParams, errors.New("agent profile has no id"))
		return
	}

	if key := strings.TrimSpace(p.APIKey); key != "" {
		s.creds.Set(p.Agent.ID, key)
	}
	if err := s.profiles.save(p.Agent, s.opts.ConfigDir); err != nil {
		s.fail(req, acp.CodeInternalError, err)
		return
	}
	logging.Info("agent profile saved", "agent", p.Agent.ID, "key_updated", p.APIKey != "")
	s.respond(req, map[string]any{"agent": p.Agent})
}

// finishCycle answers a prompt or review request once the controller
// returns.
func (s *Server) finishCycle(req *acp.Request, hs *hostSession, err error) {
	if saveErr := hs.ctrl.Store().Save(); saveErr != nil {
		logging.Warn("failed to save session", "session", hs.id, "error", saveErr)
	}

	switch {
	case errors.Is(err, errors.ErrBusy), errors.Is(err, errors.ErrReviewPending):
		s.fail(req, acp.CodeBusy, err)
		return
	case errors.Is(err, errors.ErrNoPendingChange):
		s.fail(req, acp.CodeInvalidRequest, err)
		return
	}
	s.respond(req, map[string]any{
		"stopReason": stopReason(err),
		"state":      hs.ctrl.State().String(),
	})
}

func stopReason(err error) string {
	switch {
	case err == nil:
		return "end_turn"
	case errors.Is(err, errors.ErrCancelled):
		return "cancelled"
	case errors.Is(err, errors.ErrContinuationLimit):
		return "max_turn_requests"
	case errors.KindOf(err) == errors.KindConfiguration:
		return "refusal"
	default:
		return "end_turn"
	}
}

func (s *Server) attach(id string, store *session.Store, agentID, cwd string) *hostSession {
	hs := &hostSession{
		id:     id,
		conn:   s.conn,
		cwd:    cwd,
		gate:   review.NewGate(),
		editor: &linkEditor{},
	}
	hs.agent = agentID
	hs.ctrl = agent.New(s.opts.Config, store, agent.Deps{
		Model:       s.opts.Model,
		FS:          s.opts.FS,
		Terminal:    s.opts.Terminal,
		Reviewer:    hs,
		Tree:        s.opts.Tree,
		Editor:      hs.editor,
		Credentials: s.creds,
		Profiles:    s.profiles,
	})
	hs.ctrl.SetCallbacks(hs.callbacks())

	s.mu.Lock()
	s.sessions[id] = hs
	s.mu.Unlock()
	return hs
}

func (s *Server) session(id string) (*hostSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs, ok := s.sessions[id]
	return hs, ok
}

func (s *Server) decode(req *acp.Request, v any) bool {
	if err := req.Decode(v); err != nil {
		s.fail(req, acp.CodeInvalidParams, err)
		return false
	}
	return true
}

func (s *Server) respond(req *acp.Request, result any) {
	if req.IsNotification() {
		return
	}
	if err := s.conn.Respond(req.ID, result); err != nil {
		logging.Error("acp write failed", "method", req.Method, "error", err)
	}
}

func (s *Server) fail(req *acp.Request, code int, err error) {
	logging.Warn("acp request failed", "method", req.Method, "error", err)
	if req.IsNotification() {
		return
	}
	if werr := s.conn.RespondError(req.ID, code, err.Error(), nil); werr != nil {
		logging.Error("acp write failed", "method", req.Method, "error", werr)
	}
}

func (s *Server) unknownSession(req *acp.Request) {
	s.fail(req, acp.CodeInvalidParams, errors.New("unknown sessionId"))
}

// promptText joins the text blocks of a prompt.
func promptText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && strings.TrimSpace(b.Text) != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// linkedFile reads the first file:// resource link of a prompt. The path is
// shown relative to cwd when it lies inside it.
func linkedFile(blocks []contentBlock, cwd string) (path, text string, ok bool) {
	for _, b := range blocks {
		if b.Type != "resource_link" || !strings.HasPrefix(b.URI, "file://") {
			continue
		}
		u, err := url.Parse(b.URI)
		if err != nil {
			logging.Warn("invalid resource link", "uri", b.URI, "error", err)
			return "", "", false
		}
		content, err := os.ReadFile(u.Path)
		if err != nil {
			logging.Warn("cannot read linked file", "path", u.Path, "error", err)
			return "", "", false
		}
		if len(content) > maxLinkedFile {
			content = append(content[:maxLinkedFile:maxLinkedFile], "\n[... truncated ...]"...)
		}
		path = u.Path
		if cwd != "" {
			if rel, err := filepath.Rel(cwd, u.Path); err == nil && !strings.HasPrefix(rel, "..") {
				path = filepath.ToSlash(rel)
			}
		}
		return path, string(content), true
	}
	return "", "", false
}

// describeInvocation renders the tool_call payload of an invocation.
func describeInvocation(inv tools.Invocation) map[string]any {
	call := map[string]any{"kind": inv.Kind()}
	switch inv := inv.(type) {
	case tools.ReadFile:
		call["path"] = inv.Path
		call["title"] = fmt.Sprintf("Read %s", inv.Path)
	case tools.WriteFile:
		call["path"] = inv.Path
		call["title"] = fmt.Sprintf("Propose changes to %s", inv.Path)
	case tools.ExecuteCommand:
		call["command"] = inv.Command
		call["title"] = fmt.Sprintf("Run %s", inv.Command)
	}
	return call
}
