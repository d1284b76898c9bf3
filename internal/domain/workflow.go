package domain

import "time"

// Workflow is an admin-authored, ordered list of dialog steps.
type Workflow struct {
	ID       string         `yaml:"id" json:"id"`
	Name     string         `yaml:"name" json:"name"`
	Triggers []string       `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Steps    []WorkflowStep `yaml:"steps" json:"steps"`
}

// StepIndex returns the index of the step with id, or -1.
func (w Workflow) StepIndex(id string) int {
	for i, s := range w.Steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// WorkflowStep is one step of a workflow. A step with an Evaluation block is
// silent: it only decides where to go next.
type WorkflowStep struct {
	ID           string      `yaml:"id" json:"id"`
	Message      Texts       `yaml:"message,omitempty" json:"message,omitempty"`
	WaitForReply bool        `yaml:"waitForReply,omitempty" json:"waitForReply,omitempty"`
	Action       *StepAction `yaml:"action,omitempty" json:"action,omitempty"`
	Evaluation   *Evaluation `yaml:"evaluation,omitempty" json:"evaluation,omitempty"`
}

// StepAction is a side effect performed when a step is emitted.
type StepAction struct {
	Type   string            `yaml:"type" json:"type"`
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Evaluation describes an LLM-evaluated branch.
type Evaluation struct {
	Prompt        string            `yaml:"prompt" json:"prompt"`
	Outcomes      map[string]string `yaml:"outcomes" json:"outcomes"`
	DefaultNextID string            `yaml:"defaultNextId" json:"defaultNextId"`
}

// WorkflowState tracks one active workflow run.
type WorkflowState struct {
	WorkflowID string            `json:"workflowId"`
	StepIndex  int               `json:"stepIndex"`
	Collected  map[string]string `json:"collected"`
	StartedAt  time.Time         `json:"startedAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy of w.
func (w *WorkflowState) Clone() *WorkflowState {
	if w == nil {
		return nil
	}
	c := *w
	c.Collected = make(map[string]string, len(w.Collected))
	for k, v := range w.Collected {
		c.Collected[k] = v
	}
	return &c
}
