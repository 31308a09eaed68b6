package agent

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m4xw311/aiteam/config"
	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/llm"
	"github.com/m4xw311/aiteam/review"
	"github.com/m4xw311/aiteam/session"
	"github.com/m4xw311/aiteam/tools"
)

type memFS struct {
	mu       sync.Mutex
	files    map[string]string
	reads    []string
	writeErr error
}

func newMemFS(files map[string]string) *memFS {
	if files == nil {
		files = map[string]string{}
	}
	return &memFS{files: files}
}

func (m *memFS) Read(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, path)
	content, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	return []byte(content), nil
}

func (m *memFS) Write(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.files[path] = string(data)
	return nil
}

func (m *memFS) file(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path]
	return content, ok
}

type fakeTerminal struct {
	mu       sync.Mutex
	commands []string
	refuse   bool
}

func (f *fakeTerminal) Run(ctx context.Context, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return errors.ToolExecution(errors.New("command '%s' is not in the list of allowed commands", command))
	}
	f.commands = append(f.commands, command)
	return nil
}

type diffCall struct {
	path, current, proposed string
}

type fakeReviewer struct {
	mu    sync.Mutex
	calls []diffCall
}

func (f *fakeReviewer) PresentDiff(path, current, proposed string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, diffCall{path, current, proposed})
}

type staticTree []string

func (t staticTree) Files() ([]string, error) { return t, nil }

type mapCredentials map[string]string

func (m mapCredentials) Credential(agentID string) (string, error) { return m[agentID], nil }

type harness struct {
	ctrl     *Controller
	sess     CycleSession
	store    *session.Store
	model    *llm.MockClient
	fs       *memFS
	terminal *fakeTerminal
	reviewer *fakeReviewer
	states   []State
	complete chan error
}

func newHarness(t *testing.T, cfg *config.Config, replies ...string) *harness {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = []config.AgentProfile{{
			ID:           "backend",
			Name:         "Senior Backend",
			Role:         "a Go expert",
			SystemPrompt: "Write idiomatic Go.",
			Model:        "gpt-4o",
			Provider:     "openai",
		}}
	}
	store, err := session.NewIn(t.TempDir(), "test")
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		sess:     NewCycleSession("backend"),
		store:    store,
		model:    llm.NewMockClient(replies...),
		fs:       newMemFS(nil),
		terminal: &fakeTerminal{},
		reviewer: &fakeReviewer{},
		complete: make(chan error, 16),
	}
	h.ctrl = New(cfg, store, Deps{
		Model:       h.model,
		FS:          h.fs,
		Terminal:    h.terminal,
		Reviewer:    h.reviewer,
		Tree:        staticTree{"go.mod", "main.go"},
		Editor:      tools.StaticEditor{Path: "main.go", Text: "package main"},
		Credentials: mapCredentials{"backend": " sk-test "},
	})
	var mu sync.Mutex
	h.ctrl.SetCallbacks(Callbacks{
		OnStateChange: func(from, to State) {
			mu.Lock()
			h.states = append(h.states, to)
			mu.Unlock()
		},
		OnComplete: func(err error) { h.complete <- err },
	})
	return h
}

func (h *harness) lastTurn() session.Turn {
	history := h.store.History()
	return history[len(history)-1]
}

func (h *harness) hasTurn(role session.Role, substr string) bool {
	for _, turn := range h.store.History() {
		if turn.Role == role && strings.Contains(turn.Content, substr) {
			return true
		}
	}
	return false
}

func TestSubmitWithoutDirectivesReturnsToIdle(t *testing.T) {
	h := newHarness(t, nil, "Nothing to do here.")

	if err := h.ctrl.Submit(context.Background(), h.sess, "hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
	if len(h.fs.reads) != 0 || len(h.terminal.commands) != 0 || len(h.reviewer.calls) != 0 {
		t.Error("dispatcher was invoked for a reply without directives")
	}
	history := h.store.History()
	if len(history) != 2 || history[0].Role != session.RoleUser || history[1].Content != "Nothing to do here." {
		t.Errorf("unexpected history %+v", history)
	}
	if err := <-h.complete; err != nil {
		t.Errorf("OnComplete err = %v", err)
	}
	want := []State{AwaitingModel, ParsingTools, Idle}
	if fmt.Sprint(h.states) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", h.states, want)
	}
}

func TestPromptLayout(t *testing.T) {
	h := newHarness(t, nil, "ok")
	if err := h.ctrl.Submit(context.Background(), h.sess, "Add a README"); err != nil {
		t.Fatal(err)
	}

	req := h.model.Requests()[0]
	if req.Model != "gpt-4o" || req.Provider != "openai" || req.Credential != "sk-test" {
		t.Errorf("unexpected request routing %+v", req)
	}
	if !strings.Contains(req.SystemPrompt, "You are Senior Backend, a Go expert.") || !strings.Contains(req.SystemPrompt, "Write idiomatic Go.") {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}

	sections := []string{"<write_file", "[PROJECT STATE]", "[RECENT HISTORY]", "USER: Add a README", "[PROJECT FILES]\ngo.mod\nmain.go", "[OPEN FILE: main.go]\npackage main", "[USER REQUEST]\nAdd a README"}
	last := -1
	for _, s := range sections {
		i := strings.Index(req.UserContent, s)
		if i < 0 {
			t.Fatalf("prompt missing %q:\n%s", s, req.UserContent)
		}
		if i < last {
			t.Errorf("section %q out of order", s)
		}
		last = i
	}
}

func TestReadmeScenarioAccept(t *testing.T) {
	h := newHarness(t, nil,
		"I'll create it.\n<write_file path=\"README.md\">\n# Hello\n</write_file>",
		"The README is in place.",
	)
	ctx := context.Background()

	if err := h.ctrl.Submit(ctx, h.sess, "Add a README"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.ctrl.State() != AwaitingReview {
		t.Fatalf("state = %v, want awaiting_review", h.ctrl.State())
	}
	if len(h.reviewer.calls) != 1 || h.reviewer.calls[0] != (diffCall{"README.md", "", "# Hello"}) {
		t.Fatalf("reviewer calls = %+v", h.reviewer.calls)
	}
	if _, ok := h.fs.file("README.md"); ok {
		t.Fatal("file written before review")
	}

	if err := h.ctrl.Submit(ctx, h.sess, "another request"); !errors.Is(err, errors.ErrReviewPending) {
		t.Errorf("Submit during review = %v, want ErrReviewPending", err)
	}
	if n := len(h.model.Requests()); n != 1 {
		t.Errorf("model called %d times while awaiting review", n)
	}

	if err := h.ctrl.Resolve(ctx, h.sess, review.Accept); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if content, _ := h.fs.file("README.md"); content != "# Hello" {
		t.Errorf("README.md = %q", content)
	}
	if !h.hasTurn(session.RoleSystem, "Applied changes to README.md.") {
		t.Error("missing confirmation turn")
	}
	reqs := h.model.Requests()
	if len(reqs) != 2 || !strings.Contains(reqs[1].UserContent, ContinueMarker) {
		t.Fatalf("expected a continuation call, got %d requests", len(reqs))
	}
	if strings.Contains(reqs[1].UserContent, "[USER REQUEST]") {
		t.Error("continuation should not carry a user request")
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
	if _, ok := h.sess.Review.Pending(); ok {
		t.Error("pending change not cleared")
	}
}

func TestRejectPromptsTheModelAgain(t *testing.T) {
	h := newHarness(t, nil,
		`<write_file path="main.go">package broken</write_file>`,
		"Understood, I will try something else.",
	)
	ctx := context.Background()

	if err := h.ctrl.Submit(ctx, h.sess, "refactor main"); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Resolve(ctx, h.sess, review.Reject); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := "I rejected the changes to main.go. Please review the code and try a different approach."
	if !h.hasTurn(session.RoleUser, want) {
		t.Error("rejection turn missing")
	}
	reqs := h.model.Requests()
	if len(reqs) != 2 || !strings.Contains(reqs[1].UserContent, "[USER REQUEST]\n"+want) {
		t.Errorf("second request did not carry the rejection: %+v", reqs)
	}
	if _, ok := h.fs.file("main.go"); ok {
		t.Error("rejected change was written")
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v", h.ctrl.State())
	}
}

func TestResolveWithoutPendingChange(t *testing.T) {
	h := newHarness(t, nil)
	err := h.ctrl.Resolve(context.Background(), h.sess, review.Accept)
	if !errors.Is(err, errors.ErrNoPendingChange) {
		t.Errorf("Resolve = %v, want ErrNoPendingChange", err)
	}
	if err := h.ctrl.Resolve(context.Background(), h.sess, review.Decision(9)); err == nil {
		t.Error("expected error for unknown decision")
	}
}

func TestAcceptWriteFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, nil, `<write_file path="a.txt">x</write_file>`, "done")
	ctx := context.Background()
	if err := h.ctrl.Submit(ctx, h.sess, "write a"); err != nil {
		t.Fatal(err)
	}
	h.fs.writeErr = errors.New("disk full")

	if err := h.ctrl.Resolve(ctx, h.sess, review.Accept); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !h.hasTurn(session.RoleSystem, "Error writing a.txt") {
		t.Error("missing write error turn")
	}
	if len(h.model.Requests()) != 2 {
		t.Error("cycle did not continue after a failed write")
	}
}

func TestReadFileFeedsContentAndContinues(t *testing.T) {
	h := newHarness(t, nil, `Let me look. <read_file path="main.go" /><read_file path="missing.go"/>`, "Looks fine.")
	h.fs.files["main.go"] = "package main\n\nfunc main() {}"

	if err := h.ctrl.Submit(context.Background(), h.sess, "review main.go"); err != nil {
		t.Fatal(err)
	}
	if !h.hasTurn(session.RoleSystem, "[FILE: main.go]\npackage main\n\nfunc main() {}\n[END FILE: main.go]") {
		t.Error("file content turn missing")
	}
	if !h.hasTurn(session.RoleSystem, "Error reading missing.go") {
		t.Error("read error turn missing")
	}
	if n := len(h.model.Requests()); n != 2 {
		t.Errorf("model called %d times, want 2", n)
	}
	if h.lastTurn().Content != "Looks fine." {
		t.Errorf("last turn = %+v", h.lastTurn())
	}
}

func TestExecuteCommandIsFireAndForget(t *testing.T) {
	h := newHarness(t, nil, "<execute_command>go test ./...</execute_command>", "Started the tests.")

	if err := h.ctrl.Submit(context.Background(), h.sess, "run tests"); err != nil {
		t.Fatal(err)
	}
	if len(h.terminal.commands) != 1 || h.terminal.commands[0] != "go test ./..." {
		t.Errorf("commands = %v", h.terminal.commands)
	}
	for _, turn := range h.store.History() {
		if turn.Role == session.RoleSystem {
			t.Errorf("unexpected system turn %q", turn.Content)
		}
	}
}

func TestRefusedCommandBecomesSystemTurn(t *testing.T) {
	h := newHarness(t, nil, "<execute_command>rm -rf /</execute_command>", "ok")
	h.terminal.refuse = true

	if err := h.ctrl.Submit(context.Background(), h.sess, "clean up"); err != nil {
		t.Fatal(err)
	}
	if !h.hasTurn(session.RoleSystem, "Error: could not run `rm -rf /`") {
		t.Error("refusal turn missing")
	}
}

func TestContinuationLimit(t *testing.T) {
	cfg := &config.Config{MaxContinuations: 2}
	h := newHarness(t, cfg)
	for i := 0; i < 3; i++ {
		h.model.Push(llm.MockReply{Fragments: []string{`<read_file path="x" />`}})
	}

	err := h.ctrl.Submit(context.Background(), h.sess, "loop forever")
	if !errors.Is(err, errors.ErrContinuationLimit) {
		t.Fatalf("Submit = %v, want ErrContinuationLimit", err)
	}
	if n := len(h.model.Requests()); n != 3 {
		t.Errorf("model called %d times, want 3", n)
	}
	if !strings.Contains(h.lastTurn().Content, "stopped after 2 automatic continuations") {
		t.Errorf("last turn = %q", h.lastTurn().Content)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v", h.ctrl.State())
	}

	h.model.Push(llm.MockReply{Fragments: []string{"fresh budget"}})
	if err := h.ctrl.Submit(context.Background(), h.sess, "again"); err != nil {
		t.Errorf("counter was not reset on Submit: %v", err)
	}
}

func TestCancelDiscardsPartialReply(t *testing.T) {
	h := newHarness(t, nil)
	h.model.Push(llm.MockReply{Fragments: []string{"partial <write_file"}, WaitForCancel: true})

	streaming := make(chan struct{})
	cb := h.ctrl.callbacks
	cb.OnFragment = func(string) { close(streaming) }
	h.ctrl.SetCallbacks(cb)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Submit(context.Background(), h.sess, "write something") }()

	select {
	case <-streaming:
	case <-time.After(5 * time.Second):
		t.Fatal("no fragment received")
	}
	if h.ctrl.State() != AwaitingModel {
		t.Errorf("state while streaming = %v", h.ctrl.State())
	}
	h.ctrl.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, errors.ErrCancelled) {
			t.Errorf("Submit = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Submit did not return after Cancel")
	}
	for _, turn := range h.store.History() {
		if turn.Role == session.RoleAssistant {
			t.Errorf("partial reply was stored: %q", turn.Content)
		}
	}
	if h.lastTurn().Content != "Cancelled." || h.ctrl.State() != Idle {
		t.Errorf("last turn = %q, state = %v", h.lastTurn().Content, h.ctrl.State())
	}
}

func TestCancelDuringReviewDropsChange(t *testing.T) {
	h := newHarness(t, nil, `<write_file path="a.go">package a</write_file>`)
	if err := h.ctrl.Submit(context.Background(), h.sess, "write a"); err != nil {
		t.Fatal(err)
	}
	h.ctrl.Cancel()

	if h.ctrl.State() != Idle {
		t.Errorf("state = %v", h.ctrl.State())
	}
	if _, ok := h.sess.Review.Pending(); ok {
		t.Error("pending change survived Cancel")
	}
	if err := h.ctrl.Resolve(context.Background(), h.sess, review.Accept); !errors.Is(err, errors.ErrNoPendingChange) {
		t.Errorf("Resolve after cancel = %v", err)
	}
}

func TestCancelDuringDispatchDropsStagedWrite(t *testing.T) {
	h := newHarness(t, nil, `<execute_command>ls</execute_command><write_file path="a.go">package a</write_file>`)
	h.ctrl.SetCallbacks(Callbacks{
		OnInvocation: func(inv tools.Invocation) {
			if inv.Kind() == "execute_command" {
				h.ctrl.Cancel()
			}
		},
		OnComplete: func(err error) { h.complete <- err },
	})

	err := h.ctrl.Submit(context.Background(), h.sess, "write a")
	if !errors.Is(err, errors.ErrCancelled) {
		t.Fatalf("Submit = %v, want cancelled", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v", h.ctrl.State())
	}
	if _, ok := h.sess.Review.Pending(); ok {
		t.Error("staged change survived Cancel")
	}
	if !h.hasTurn(session.RoleSystem, "Cancelled.") {
		t.Error("missing cancellation turn")
	}
	if err := <-h.complete; !errors.Is(err, errors.ErrCancelled) {
		t.Errorf("OnComplete err = %v", err)
	}
}

func TestTransportError(t *testing.T) {
	h := newHarness(t, nil)
	h.model.Push(llm.MockReply{Fragments: []string{"half a rep"}, Err: errors.Transport(errors.New("connection reset"))})

	err := h.ctrl.Submit(context.Background(), h.sess, "hi")
	if errors.KindOf(err) != errors.KindTransport {
		t.Fatalf("Submit = %v, want transport error", err)
	}
	last := h.lastTurn()
	if last.Role != session.RoleSystem || !strings.HasPrefix(last.Content, "Error: ") || !strings.Contains(last.Content, "connection reset") {
		t.Errorf("last turn = %+v", last)
	}
	if h.hasTurn(session.RoleAssistant, "half a rep") {
		t.Error("partial reply was stored")
	}
	sawError := false
	for _, s := range h.states {
		sawError = sawError || s == Error
	}
	if !sawError || h.ctrl.State() != Idle {
		t.Errorf("states = %v", h.states)
	}
}

func TestConfigurationErrors(t *testing.T) {
	t.Run("unknown agent", func(t *testing.T) {
		h := newHarness(t, nil, "unused")
		h.sess.AgentID = "nobody"
		err := h.ctrl.Submit(context.Background(), h.sess, "hi")
		if errors.KindOf(err) != errors.KindConfiguration {
			t.Fatalf("Submit = %v", err)
		}
		if h.lastTurn().Content != "Error: Agent not found." || len(h.model.Requests()) != 0 {
			t.Errorf("last turn = %q, requests = %d", h.lastTurn().Content, len(h.model.Requests()))
		}
	})

	t.Run("missing credential", func(t *testing.T) {
		h := newHarness(t, nil, "unused")
		h.ctrl.deps.Credentials = mapCredentials{}
		err := h.ctrl.Submit(context.Background(), h.sess, "hi")
		if errors.KindOf(err) != errors.KindConfiguration {
			t.Fatalf("Submit = %v", err)
		}
		if h.lastTurn().Content != "Error: API Key missing." || len(h.model.Requests()) != 0 {
			t.Errorf("last turn = %q", h.lastTurn().Content)
		}
		if h.ctrl.State() != Idle {
			t.Errorf("state = %v", h.ctrl.State())
		}
	})

	t.Run("providers without keys", func(t *testing.T) {
		cfg := &config.Config{Agents: []config.AgentProfile{{ID: "local", Model: "llama3", Provider: "ollama"}}}
		h := newHarness(t, cfg, "hello")
		h.sess.AgentID = "local"
		h.ctrl.deps.Credentials = mapCredentials{}
		if err := h.ctrl.Submit(context.Background(), h.sess, "hi"); err != nil {
			t.Errorf("Submit = %v", err)
		}
	})
}

func TestReviewTimeout(t *testing.T) {
	cfg := &config.Config{ReviewTimeout: 30 * time.Millisecond}
	h := newHarness(t, cfg, `<write_file path="slow.txt">x</write_file>`)

	if err := h.ctrl.Submit(context.Background(), h.sess, "write slowly"); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-h.complete:
		if err == nil {
			t.Error("expected a timeout error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("review did not time out")
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v", h.ctrl.State())
	}
	if _, ok := h.sess.Review.Pending(); ok {
		t.Error("pending change survived the timeout")
	}
	if !h.hasTurn(session.RoleSystem, "slow.txt was not reviewed within") {
		t.Error("timeout turn missing")
	}
}

func TestStrictDirectivesWarn(t *testing.T) {
	cfg := &config.Config{StrictDirectives: true}
	h := newHarness(t, cfg, `<write_file path="a.go">never closed`)

	if err := h.ctrl.Submit(context.Background(), h.sess, "go"); err != nil {
		t.Fatal(err)
	}
	if !h.hasTurn(session.RoleSystem, "Warning: unterminated <write_file> directive at offset 0") {
		t.Error("strict warning missing")
	}
}

func TestBusyControllerRefusesSubmit(t *testing.T) {
	h := newHarness(t, nil)
	h.model.Push(llm.MockReply{WaitForCancel: true})

	started := make(chan struct{})
	cb := h.ctrl.callbacks
	cb.OnStateChange = func(from, to State) {
		if to == AwaitingModel {
			close(started)
		}
	}
	h.ctrl.SetCallbacks(cb)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Submit(context.Background(), h.sess, "first") }()
	<-started

	if err := h.ctrl.Submit(context.Background(), h.sess, "second"); !errors.Is(err, errors.ErrBusy) {
		t.Errorf("Submit while busy = %v, want ErrBusy", err)
	}
	h.ctrl.Cancel()
	<-done
	if h.hasTurn(session.RoleUser, "second") {
		t.Error("refused prompt was recorded")
	}
}

func TestDispatcherRefusesSecondWrite(t *testing.T) {
	store, _ := session.NewIn(t.TempDir(), "d")
	reviewer := &fakeReviewer{}
	d := NewDispatcher(store, newMemFS(nil), &fakeTerminal{}, reviewer)
	sess := NewCycleSession("a")
	ctx := context.Background()

	outcome, err := d.Dispatch(ctx, sess, tools.WriteFile{Path: "first.go", Content: "1"})
	if err != nil || outcome != AwaitReview {
		t.Fatalf("first write = %v, %v", outcome, err)
	}
	outcome, err = d.Dispatch(ctx, sess, tools.WriteFile{Path: "second.go", Content: "2"})
	if !errors.Is(err, errors.ErrChangePending) || outcome != Continue {
		t.Errorf("second write = %v, %v", outcome, err)
	}
	history := store.History()
	if got := history[len(history)-1].Content; got != "Write to second.go refused: first.go is still awaiting review" {
		t.Errorf("refusal turn = %q", got)
	}
	if change, _ := sess.Review.Pending(); change.Path != "first.go" {
		t.Errorf("pending change replaced: %+v", change)
	}
	if len(reviewer.calls) != 1 {
		t.Errorf("reviewer called %d times", len(reviewer.calls))
	}
}

func TestDispatchBatchStopsAtWrite(t *testing.T) {
	store, _ := session.NewIn(t.TempDir(), "d")
	fsys := newMemFS(map[string]string{"old.go": "package old"})
	term := &fakeTerminal{}
	d := NewDispatcher(store, fsys, term, &fakeReviewer{})
	sess := NewCycleSession("a")

	outcome, err := d.DispatchBatch(context.Background(), sess, []tools.Invocation{
		tools.ExecuteCommand{Command: "ls"},
		tools.WriteFile{Path: "old.go", Content: "package new"},
		tools.ReadFile{Path: "old.go"},
		tools.ExecuteCommand{Command: "go build"},
	})
	if err != nil || outcome != AwaitReview {
		t.Fatalf("DispatchBatch = %v, %v", outcome, err)
	}
	if len(term.commands) != 1 {
		t.Errorf("commands after the write were run: %v", term.commands)
	}
	if change, _ := sess.Review.Pending(); change.Original != "package old" || change.Content != "package new" {
		t.Errorf("pending change = %+v", change)
	}
	if store.Len() != 0 {
		t.Errorf("read after the write was dispatched: %+v", store.History())
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", AwaitingModel: "awaiting_model", ParsingTools: "parsing_tools", AwaitingReview: "awaiting_review", Continuing: "continuing", Error: "error", State(42): "unknown"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
