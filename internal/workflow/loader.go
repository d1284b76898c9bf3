package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"hostel-agent/internal/domain"
)

// LoadFile reads workflow definitions from a YAML file. The file holds either
// a single workflow or a list of them.
func LoadFile(path string) ([]domain.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	wfs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workflow: %s: %w", path, err)
	}
	return wfs, nil
}

// Parse decodes one workflow or a list of workflows and validates each.
func Parse(data []byte) ([]domain.Workflow, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	var wfs []domain.Workflow
	switch node.Content[0].Kind {
	case yaml.SequenceNode:
		if err := node.Content[0].Decode(&wfs); err != nil {
			return nil, fmt.Errorf("decode workflows: %w", err)
		}
	case yaml.MappingNode:
		var wf domain.Workflow
		if err := node.Content[0].Decode(&wf); err != nil {
			return nil, fmt.Errorf("decode workflow: %w", err)
		}
		wfs = append(wfs, wf)
	default:
		return nil, errors.New("expected a workflow mapping or a list of workflows")
	}

	for _, wf := range wfs {
		if err := Validate(wf); err != nil {
			return nil, err
		}
	}
	return wfs, nil
}

// LoadDir reads every *.yaml and *.yml file in dir, in name order.
func LoadDir(dir string) ([]domain.Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("workflow: read dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []domain.Workflow
	seen := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(dir, name)
		wfs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, wf := range wfs {
			if prev, dup := seen[wf.ID]; dup {
				return nil, fmt.Errorf("workflow: %q defined in both %s and %s", wf.ID, prev, path)
			}
			seen[wf.ID] = path
			out = append(out, wf)
		}
	}
	return out, nil
}

// Validate checks a definition for structural errors.
func Validate(wf domain.Workflow) error {
	if strings.TrimSpace(wf.ID) == "" {
		return errors.New("workflow: id is required")
	}
	if len(wf.Steps) == 0 {
		return fmt.Errorf("workflow %q: no steps", wf.ID)
	}

	ids := make(map[string]bool, len(wf.Steps))
	for i, s := range wf.Steps {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("workflow %q: step %d has no id", wf.ID, i)
		}
		if ids[s.ID] {
			return fmt.Errorf("workflow %q: duplicate step id %q", wf.ID, s.ID)
		}
		ids[s.ID] = true
	}

	for _, s := range wf.Steps {
		if s.Evaluation == nil {
			continue
		}
		if strings.TrimSpace(s.Evaluation.Prompt) == "" {
			return fmt.Errorf("workflow %q: evaluation step %q has no prompt", wf.ID, s.ID)
		}
		if s.WaitForReply || len(s.Message) > 0 {
			return fmt.Errorf("workflow %q: evaluation step %q cannot send a message or wait", wf.ID, s.ID)
		}
		if d := s.Evaluation.DefaultNextID; d != "" && !ids[d] {
			return fmt.Errorf("workflow %q: step %q default target %q not found", wf.ID, s.ID, d)
		}
		for result, target := range s.Evaluation.Outcomes {
			if !ids[target] {
				return fmt.Errorf("workflow %q: step %q outcome %q targets unknown step %q", wf.ID, s.ID, result, target)
			}
		}
	}
	return nil
}
