package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/m4xw311/aiteam/config"
	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/llm"
	"github.com/m4xw311/aiteam/logging"
	"github.com/m4xw311/aiteam/review"
	"github.com/m4xw311/aiteam/session"
	"github.com/m4xw311/aiteam/tools"
)

// CycleSession names the agent a cycle runs as and owns the review gate that
// holds its pending change. It is passed to every Controller call.
type CycleSession struct {
	AgentID string
	Review  *review.Gate
	// OnAdmit runs once Submit has accepted the prompt, before the model is
	// called. A refused prompt never runs it.
	OnAdmit func()
}

func NewCycleSession(agentID string) CycleSession {
	return CycleSession{AgentID: agentID, Review: review.NewGate()}
}

// Profiles looks up agent profiles. *config.Config satisfies it.
type Profiles interface {
	Agent(id string) (config.AgentProfile, error)
}

// Deps are the collaborators of a Controller. Tree and Editor are optional.
type Deps struct {
	Model       llm.Client
	FS          tools.FileSystem
	Terminal    tools.Terminal
	Reviewer    tools.Reviewer
	Tree        tools.ProjectTree
	Editor      tools.Editor
	Credentials config.CredentialStore
	// Profiles overrides the profile lookup of the config.
	Profiles Profiles
}

// Controller drives the agent cycle for one conversation: it calls the model,
// dispatches the directives in its reply and keeps calling it until the
// reply has no directives or a write needs review. One cycle runs at a time.
type Controller struct {
	store      *session.Store
	deps       Deps
	profiles   Profiles
	dispatcher *Dispatcher

	maxContinuations int
	reviewTimeout    time.Duration
	parseMode        tools.Mode

	callbacks Callbacks

	mu            sync.Mutex
	state         State
	cancel        context.CancelFunc
	reviewTimer   *time.Timer
	reviewGate    *review.Gate
	continuations int

	// cancelRequested records a Cancel that arrived between model calls.
	cancelRequested bool
}

// cycle is the immutable input of one run: the profile is copied when the
// run starts so edits made meanwhile do not affect it.
type cycle struct {
	sess       CycleSession
	profile    config.AgentProfile
	credential string
}

func New(cfg *config.Config, store *session.Store, deps Deps) *Controller {
	c := &Controller{
		store:            store,
		deps:             deps,
		profiles:         deps.Profiles,
		maxContinuations: cfg.MaxContinuations,
		reviewTimeout:    cfg.ReviewTimeout,
	}
	if c.profiles == nil {
		c.profiles = cfg
	}
	if c.maxContinuations <= 0 {
		c.maxContinuations = config.DefaultMaxContinuations
	}
	if cfg.StrictDirectives {
		c.parseMode = tools.ModeStrict
	}
	if c.deps.Credentials == nil {
		c.deps.Credentials = config.EnvCredentials{}
	}
	c.dispatcher = NewDispatcher(store, deps.FS, deps.Terminal, deps.Reviewer)
	c.dispatcher.callbacks = &c.callbacks
	return c
}

// SetCallbacks replaces the observers. It must not be called while a cycle
// is running.
func (c *Controller) SetCallbacks(cb Callbacks) {
	c.callbacks = cb
}

// Store returns the conversation the controller appends to.
func (c *Controller) Store() *session.Store { return c.store }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit starts a cycle with a user prompt. It returns when the cycle is back
// to Idle or waits for a review. A controller that is not Idle refuses the
// prompt with errors.ErrBusy, or errors.ErrReviewPending while a change
// awaits review.
func (c *Controller) Submit(ctx context.Context, sess CycleSession, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil
	}

	c.mu.Lock()
	switch c.state {
	case Idle:
	case AwaitingReview:
		c.mu.Unlock()
		return errors.ErrReviewPending
	default:
		c.mu.Unlock()
		return errors.ErrBusy
	}
	c.state = AwaitingModel
	c.continuations = 0
	c.cancelRequested = false
	c.mu.Unlock()
	c.callbacks.stateChange(Idle, AwaitingModel)
	if sess.OnAdmit != nil {
		sess.OnAdmit()
	}

	c.appendTurn(session.RoleUser, prompt)
	cy, err := c.begin(sess)
	if err != nil {
		return err
	}
	return c.run(ctx, cy, prompt)
}

// Resolve applies the human decision on the pending change and resumes the
// cycle. Outside AwaitingReview it returns errors.ErrNoPendingChange.
func (c *Controller) Resolve(ctx context.Context, sess CycleSession, decision review.Decision) error {
	if decision != review.Accept && decision != review.Reject {
		return errors.New("unknown review decision %d", decision)
	}

	c.mu.Lock()
	if c.state != AwaitingReview || sess.Review == nil {
		c.mu.Unlock()
		return errors.ErrNoPendingChange
	}
	change, ok := sess.Review.Take()
	if !ok {
		c.mu.Unlock()
		return errors.ErrNoPendingChange
	}
	c.stopReviewTimerLocked()
	c.continuations = 0
	c.cancelRequested = false
	next := Continuing
	if decision == review.Reject {
		next = AwaitingModel
	}
	c.state = next
	c.mu.Unlock()
	c.callbacks.stateChange(AwaitingReview, next)

	logging.Info("review resolved", "path", change.Path, "id", change.ID, "decision", decision)

	var request string
	switch decision {
	case review.Accept:
		if err := c.deps.FS.Write(change.Path, []byte(change.Content)); err != nil {
			logging.Warn("applying change failed", "path", change.Path, "error", err)
			c.appendTurn(session.RoleSystem, fmt.Sprintf("Error writing %s: %v", change.Path, errors.ToolExecution(err)))
		} else {
			c.appendTurn(session.RoleSystem, fmt.Sprintf("Applied changes to %s.", change.Path))
		}
		c.transition(Continuing, AwaitingModel)
	case review.Reject:
		request = RejectionPrompt(change.Path)
		c.appendTurn(session.RoleUser, request)
	}

	cy, err := c.begin(sess)
	if err != nil {
		return err
	}
	return c.run(ctx, cy, request)
}

// Cancel aborts the model call in flight, or drops the change awaiting
// review. The cycle returns to Idle with a system turn noting the
// cancellation.
func (c *Controller) Cancel() {
	c.mu.Lock()
	switch c.state {
	case AwaitingModel, ParsingTools, Continuing:
		if c.cancel != nil {
			c.cancel()
		} else {
			c.cancelRequested = true
		}
		c.mu.Unlock()
	case AwaitingReview:
		if c.reviewGate != nil {
			c.reviewGate.Clear()
		}
		c.stopReviewTimerLocked()
		c.state = Idle
		c.mu.Unlock()
		c.callbacks.stateChange(AwaitingReview, Idle)
		c.appendTurn(session.RoleSystem, "Cancelled. The proposed change was discarded.")
		c.callbacks.complete(errors.ErrCancelled)
	default:
		c.mu.Unlock()
	}
}

// begin resolves the profile and credential for a run. A failure is a
// configuration error reported as a turn.
func (c *Controller) begin(sess CycleSession) (cycle, error) {
	profile, err := c.profiles.Agent(sess.AgentID)
	if err != nil {
		logging.Warn("agent profile lookup failed", "agent", sess.AgentID, "error", err)
		c.appendTurn(session.RoleSystem, "Error: Agent not found.")
		return cycle{}, c.finish(errors.Configuration(err))
	}

	var credential string
	if llm.RequiresCredential(profile.Provider) {
		credential, err = c.deps.Credentials.Credential(profile.ID)
		if err == nil && strings.TrimSpace(credential) == "" {
			err = errors.New("no API key for agent '%s'", profile.ID)
		}
		if err != nil {
			logging.Warn("credential lookup failed", "agent", profile.ID, "error", err)
			c.appendTurn(session.RoleSystem, "Error: API Key missing.")
			return cycle{}, c.finish(errors.Configuration(err))
		}
	}
	return cycle{sess: sess, profile: profile, credential: strings.TrimSpace(credential)}, nil
}

// run works through the queue of model calls. Each reply either ends the
// cycle, suspends it for review, or enqueues a continuation.
func (c *Controller) run(ctx context.Context, cy cycle, request string) error {
	queue := []string{request}
	for len(queue) > 0 {
		request, queue = queue[0], queue[1:]

		text, err := c.callModel(ctx, cy, request)
		if err != nil {
			return err
		}
		c.appendTurn(session.RoleAssistant, text)
		c.transition(AwaitingModel, ParsingTools)

		invs, warnings := tools.ParseMode(text, c.parseMode)
		for _, w := range warnings {
			c.appendTurn(session.RoleSystem, "Warning: "+w.String())
		}
		if len(invs) == 0 {
			return c.finish(nil)
		}

		outcome, err := c.dispatcher.DispatchBatch(ctx, cy.sess, invs)
		if err != nil {
			return c.finish(err)
		}
		if outcome == AwaitReview {
			if !c.suspend(cy.sess) {
				c.appendTurn(session.RoleSystem, "Cancelled. The proposed change was discarded.")
				return c.finish(errors.ErrCancelled)
			}
			return nil
		}

		c.mu.Lock()
		limited := c.continuations >= c.maxContinuations
		if !limited {
			c.continuations++
		}
		c.mu.Unlock()
		if limited {
			c.appendTurn(session.RoleSystem, fmt.Sprintf("Error: stopped after %d automatic continuations.", c.maxContinuations))
			return c.finish(errors.ErrContinuationLimit)
		}

		c.transition(ParsingTools, Continuing)
		c.transition(Continuing, AwaitingModel)
		queue = append(queue, "")
	}
	return nil
}

// callModel streams one reply. On failure the partial reply is discarded,
// the failure is recorded as a turn and the cycle ends.
func (c *Controller) callModel(ctx context.Context, cy cycle, request string) (string, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	if c.cancelRequested {
		c.cancelRequested = false
		cancel()
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	req := llm.Request{
		SystemPrompt: systemPrompt(cy.profile),
		UserContent:  c.buildPrompt(request),
		Model:        cy.profile.Model,
		Credential:   cy.credential,
		Provider:     cy.profile.Provider,
	}
	logging.Debug("calling model", "agent", cy.profile.ID, "model", req.Model, "provider", req.Provider, "continuation", request == "")

	var buf strings.Builder
	var streamErr error
	for fragment, err := range c.deps.Model.Stream(runCtx, req) {
		if err != nil {
			streamErr = err
			break
		}
		buf.WriteString(fragment)
		c.callbacks.fragment(fragment)
	}

	if runCtx.Err() != nil {
		logging.Info("model call cancelled", "agent", cy.profile.ID, "discarded", buf.Len())
		c.appendTurn(session.RoleSystem, "Cancelled.")
		return "", c.finish(errors.ErrCancelled)
	}
	if streamErr != nil {
		logging.Error("model call failed", "agent", cy.profile.ID, "error", streamErr)
		err := streamErr
		if errors.KindOf(err) == "" {
			err = errors.Transport(err)
		}
		c.appendTurn(session.RoleSystem, "Error: "+err.Error())
		c.transition(AwaitingModel, Error)
		return "", c.finish(err)
	}
	return buf.String(), nil
}

// suspend parks the cycle until Resolve, Cancel or the review timeout. It
// returns false and drops the staged change when a Cancel arrived while the
// batch was being dispatched.
func (c *Controller) suspend(sess CycleSession) bool {
	c.mu.Lock()
	if c.cancelRequested {
		c.cancelRequested = false
		sess.Review.Clear()
		c.mu.Unlock()
		logging.Info("cancel arrived during dispatch, discarding staged change")
		return false
	}
	from := c.state
	c.state = AwaitingReview
	c.reviewGate = sess.Review
	if c.reviewTimeout > 0 {
		if change, ok := sess.Review.Pending(); ok {
			id := change.ID
			c.reviewTimer = time.AfterFunc(c.reviewTimeout, func() { c.expireReview(sess.Review, id) })
		}
	}
	c.mu.Unlock()
	c.callbacks.stateChange(from, AwaitingReview)
	return true
}

func (c *Controller) expireReview(gate *review.Gate, id string) {
	c.mu.Lock()
	change, ok := gate.Pending()
	if c.state != AwaitingReview || !ok || change.ID != id {
		c.mu.Unlock()
		return
	}
	gate.Clear()
	c.reviewTimer = nil
	c.state = Idle
	c.mu.Unlock()

	logging.Warn("review timed out", "path", change.Path, "timeout", c.reviewTimeout)
	c.callbacks.stateChange(AwaitingReview, Idle)
	c.appendTurn(session.RoleSystem, fmt.Sprintf("Error: the change to %s was not reviewed within %s and was discarded.", change.Path, c.reviewTimeout))
	c.callbacks.complete(errors.ToolExecution(errors.New("review of %s timed out", change.Path)))
}

func (c *Controller) stopReviewTimerLocked() {
	if c.reviewTimer != nil {
		c.reviewTimer.Stop()
		c.reviewTimer = nil
	}
	c.reviewGate = nil
}

// finish returns the controller to Idle and reports err to the host.
func (c *Controller) finish(err error) error {
	c.mu.Lock()
	from := c.state
	c.state = Idle
	c.mu.Unlock()
	c.callbacks.stateChange(from, Idle)
	c.callbacks.complete(err)
	return err
}

func (c *Controller) transition(from, to State) {
	c.mu.Lock()
	c.state = to
	c.mu.Unlock()
	c.callbacks.stateChange(from, to)
}

func (c *Controller) appendTurn(role session.Role, content string) {
	c.callbacks.turn(c.store.AppendMessage(role, content))
}
