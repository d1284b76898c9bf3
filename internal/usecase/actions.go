package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"hostel-agent/internal/domain"
	"hostel-agent/internal/logging"
)

// Step action types understood by StepActions.
const (
	StepActionSendMessage = "send_message"
	StepActionCallAPI     = "call_api"
)

// API performs authenticated calls against the hostel backend.
type API interface {
	CallAPI(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// StepActions runs workflow step actions. send_message delivers params.text
// (or the step text) to params.to, defaulting to the guest. call_api sends the
// collected answers to params.path and fills {result} in the step text.
type StepActions struct {
	transport Transport
	api       API
	logger    *slog.Logger
}

// NewStepActions creates a StepActions. api may be nil when no workflow uses
// call_api.
func NewStepActions(transport Transport, api API, logger *slog.Logger) (*StepActions, error) {
	if transport == nil {
		return nil, errors.New("usecase: transport must not be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StepActions{transport: transport, api: api, logger: logger}, nil
}

// Enhance implements workflow.Enhancer.
func (a *StepActions) Enhance(ctx context.Context, key string, step domain.WorkflowStep, state *domain.WorkflowState, text string) (string, error) {
	if step.Action == nil {
		return text, nil
	}
	params := step.Action.Params
	switch step.Action.Type {
	case StepActionSendMessage:
		to := strings.TrimSpace(params["to"])
		if to == "" {
			to = key
		}
		body := params["text"]
		if body == "" {
			body = text
		}
		if err := a.transport.SendMessage(ctx, to, expand(body, key, state)); err != nil {
			return text, fmt.Errorf("usecase: send_message: %w", err)
		}
		if to == key && params["text"] == "" {
			// Already delivered to the guest.
			return "", nil
		}
		return text, nil

	case StepActionCallAPI:
		if a.api == nil {
			return text, errors.New("usecase: call_api: no api client configured")
		}
		path := params["path"]
		if path == "" {
			return text, errors.New("usecase: call_api: path is required")
		}
		method := strings.ToUpper(params["method"])
		if method == "" {
			method = http.MethodPost
		}
		var body any
		if method != http.MethodGet {
			body = apiPayload(key, state)
		}
		raw, err := a.api.CallAPI(ctx, method, path, body)
		if err != nil {
			return text, fmt.Errorf("usecase: call_api %s %s: %w", method, path, err)
		}
		a.logger.Info("usecase: workflow api call succeeded", "key", key, "path", path)
		return strings.ReplaceAll(text, "{result}", resultField(raw, params["field"])), nil

	default:
		return text, fmt.Errorf("usecase: unknown step action %q", step.Action.Type)
	}
}

type workflowPayload struct {
	Guest      string            `json:"guest"`
	WorkflowID string            `json:"workflowId"`
	Answers    map[string]string `json:"answers"`
}

func apiPayload(key string, state *domain.WorkflowState) workflowPayload {
	p := workflowPayload{Guest: key, Answers: map[string]string{}}
	if state != nil {
		p.WorkflowID = state.WorkflowID
		for k, v := range state.Collected {
			p.Answers[k] = v
		}
	}
	return p
}

// expand replaces {guest} and {answer:<step>} placeholders.
func expand(s, key string, state *domain.WorkflowState) string {
	s = strings.ReplaceAll(s, "{guest}", key)
	if state == nil {
		return s
	}
	for k, v := range state.Collected {
		s = strings.ReplaceAll(s, "{answer:"+k+"}", v)
	}
	return s
}

func resultField(raw json.RawMessage, field string) string {
	if field == "" {
		field = "reference"
	}
	var obj map[string]any
	if json.Unmarshal(raw, &obj) != nil {
		return ""
	}
	switch v := obj[field].(type) {
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	}
	return ""
}
