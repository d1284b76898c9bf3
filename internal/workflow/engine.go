// Package workflow runs admin-authored step lists as dialogs. Steps with an
// evaluation block are silent: they only pick the next step.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"hostel-agent/internal/domain"
	"hostel-agent/internal/logging"
)

// maxTransitions bounds the steps executed in one turn.
const maxTransitions = 64

var ErrUnknownWorkflow = errors.New("workflow: unknown workflow")

// Evaluator classifies a guest reply for an evaluation step.
type Evaluator interface {
	Evaluate(ctx context.Context, prompt, collected, input string) (string, error)
}

// Enhancer post-processes an emitted step. It may run the step's action or
// send something directly, and returns the text to emit.
type Enhancer interface {
	Enhance(ctx context.Context, key string, step domain.WorkflowStep, state *domain.WorkflowState, text string) (string, error)
}

// Turn is the result of starting or advancing a workflow.
type Turn struct {
	WorkflowID string
	Messages   []string
	State      *domain.WorkflowState // nil once the run ends
	Completed  bool
	Abandoned  bool
	Summary    string
}

// Engine executes workflows. It holds definitions only; run state lives in
// the conversation.
type Engine struct {
	workflows map[string]domain.Workflow
	evaluator Evaluator
	enhancer  Enhancer
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEnhancer rewrites step messages before they are sent.
func WithEnhancer(enh Enhancer) Option {
	return func(e *Engine) {
		e.enhancer = enh
	}
}

// WithClock overrides the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine validates workflows and returns an Engine.
func NewEngine(workflows []domain.Workflow, evaluator Evaluator, opts ...Option) (*Engine, error) {
	e := &Engine{
		workflows: make(map[string]domain.Workflow, len(workflows)),
		evaluator: evaluator,
		now:       time.Now,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, wf := range workflows {
		if err := Validate(wf); err != nil {
			return nil, err
		}
		if _, dup := e.workflows[wf.ID]; dup {
			return nil, fmt.Errorf("workflow: duplicate workflow id %q", wf.ID)
		}
		e.workflows[wf.ID] = wf
	}
	return e, nil
}

// Workflow returns the definition for id.
func (e *Engine) Workflow(id string) (domain.Workflow, bool) {
	wf, ok := e.workflows[id]
	return wf, ok
}

// IDs returns the known workflow ids, sorted.
func (e *Engine) IDs() []string {
	ids := make([]string, 0, len(e.workflows))
	for id := range e.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Match returns the first workflow (by id) with a trigger phrase in text.
func (e *Engine) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, id := range e.IDs() {
		for _, trig := range e.workflows[id].Triggers {
			if trig = strings.ToLower(strings.TrimSpace(trig)); trig != "" && strings.Contains(lower, trig) {
				return id, true
			}
		}
	}
	return "", false
}

// Start begins a run of workflowID and executes steps until the first pause.
func (e *Engine) Start(ctx context.Context, key, workflowID string, lang domain.Language) (Turn, error) {
	wf, ok := e.workflows[workflowID]
	if !ok {
		return Turn{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, workflowID)
	}
	now := e.now()
	state := &domain.WorkflowState{
		WorkflowID: wf.ID,
		StepIndex:  0,
		Collected:  make(map[string]string),
		StartedAt:  now,
		UpdatedAt:  now,
	}
	e.logger.Info("workflow: started", "key", key, "workflow", wf.ID)
	return e.run(ctx, key, wf, state, 0, "", lang), nil
}

// Advance consumes one guest reply for the paused step in state. The state
// passed in is not modified.
func (e *Engine) Advance(ctx context.Context, key string, state *domain.WorkflowState, input string, lang domain.Language) Turn {
	if state == nil {
		return Turn{Abandoned: true}
	}
	wf, ok := e.workflows[state.WorkflowID]
	if !ok || state.StepIndex < 0 || state.StepIndex >= len(wf.Steps) {
		e.logger.Warn("workflow: abandoning run with unknown position", "key", key, "workflow", state.WorkflowID, "step", state.StepIndex)
		return Turn{WorkflowID: state.WorkflowID, Abandoned: true}
	}

	next := state.Clone()
	if next.Collected == nil {
		next.Collected = make(map[string]string)
	}
	if prev := wf.Steps[state.StepIndex]; prev.Evaluation == nil {
		next.Collected[prev.ID] = input
	}
	return e.run(ctx, key, wf, next, state.StepIndex+1, input, lang)
}

// run executes steps from idx until a step waits for a reply or the list ends.
// Evaluation steps jump without emitting; an evaluation step reached twice in
// one turn is a misconfigured cycle and falls back to linear advance.
func (e *Engine) run(ctx context.Context, key string, wf domain.Workflow, state *domain.WorkflowState, idx int, input string, lang domain.Language) Turn {
	turn := Turn{WorkflowID: wf.ID}
	evaluated := make(map[int]bool)

	for hops := 0; idx < len(wf.Steps); hops++ {
		if hops >= maxTransitions {
			e.logger.Error("workflow: transition limit reached, abandoning run", "key", key, "workflow", wf.ID, "step", wf.Steps[idx].ID)
			return Turn{WorkflowID: wf.ID, Messages: turn.Messages, Abandoned: true}
		}
		step := wf.Steps[idx]

		if step.Evaluation != nil {
			if evaluated[idx] {
				e.logger.Warn("workflow: evaluation cycle detected, advancing linearly", "workflow", wf.ID, "step", step.ID)
				idx++
				continue
			}
			evaluated[idx] = true
			idx = e.evaluate(ctx, wf, idx, state, input)
			continue
		}

		text := step.Message.Pick(lang)
		if e.enhancer != nil {
			enhanced, err := e.enhancer.Enhance(ctx, key, step, state, text)
			if err != nil {
				e.logger.Warn("workflow: step enhancement failed", "workflow", wf.ID, "step", step.ID, "err", err)
			} else {
				text = enhanced
			}
		}
		if text != "" {
			turn.Messages = append(turn.Messages, text)
		}

		if step.WaitForReply {
			state.StepIndex = idx
			state.UpdatedAt = e.now()
			turn.State = state
			return turn
		}
		idx++
	}

	turn.Completed = true
	turn.Summary = Summary(key, wf, state.Collected)
	e.logger.Info("workflow: completed", "key", key, "workflow", wf.ID, "answers", len(state.Collected))
	return turn
}

// evaluate returns the index to continue at after evaluation step idx.
func (e *Engine) evaluate(ctx context.Context, wf domain.Workflow, idx int, state *domain.WorkflowState, input string) int {
	step := wf.Steps[idx]
	if e.evaluator == nil {
		e.logger.Warn("workflow: no evaluator configured, advancing linearly", "workflow", wf.ID, "step", step.ID)
		return idx + 1
	}

	result, err := e.evaluator.Evaluate(ctx, step.Evaluation.Prompt, collectedContext(wf, state.Collected), input)
	if err != nil {
		e.logger.Warn("workflow: evaluation failed, advancing linearly", "workflow", wf.ID, "step", step.ID, "err", err)
		return idx + 1
	}

	target := lookupOutcome(step.Evaluation.Outcomes, result)
	if target == "" {
		target = step.Evaluation.DefaultNextID
	}
	next := wf.StepIndex(target)
	if next < 0 {
		e.logger.Warn("workflow: evaluation target not found, advancing linearly", "workflow", wf.ID, "step", step.ID, "result", result, "target", target)
		return idx + 1
	}
	e.logger.Debug("workflow: evaluation branch", "workflow", wf.ID, "step", step.ID, "result", result, "target", target)
	return next
}

func lookupOutcome(outcomes map[string]string, result string) string {
	result = strings.TrimSpace(result)
	if target, ok := outcomes[result]; ok {
		return target
	}
	for k, target := range outcomes {
		if strings.EqualFold(k, result) {
			return target
		}
	}
	return ""
}

// collectedContext renders collected answers in step order.
func collectedContext(wf domain.Workflow, collected map[string]string) string {
	var b strings.Builder
	for _, s := range wf.Steps {
		if v, ok := collected[s.ID]; ok {
			fmt.Fprintf(&b, "%s: %s\n", s.ID, v)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary renders a completed run for operators.
func Summary(key string, wf domain.Workflow, collected map[string]string) string {
	name := wf.Name
	if name == "" {
		name = wf.ID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow %q completed by %s", name, key)
	if ctx := collectedContext(wf, collected); ctx != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(ctx, "\n") {
			b.WriteString("\n- " + line)
		}
	}
	return b.String()
}
