package engine

import (
	"sort"
	"sync"

	"github.com/rendis/handoff/internal/validation"
	"github.com/rendis/handoff/pkg/schema"
)

// Workflow is a named chain of steps plus the schemas for its overall
// input and output. The workflows in scope are single-step, but the
// model supports multi-step chains.
type Workflow struct {
	Name         string
	Description  string
	Steps        []Step
	InputSchema  *validation.Schema
	OutputSchema *validation.Schema
}

// StepByID returns the step with the given ID, or nil.
func (w *Workflow) StepByID(id string) Step {
	for _, s := range w.Steps {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// WorkflowInfo is a summary of a registered workflow for listing.
type WorkflowInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Registry is a thread-safe lookup of workflow definitions by name.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string]*Workflow),
	}
}

// Register adds a workflow to the registry. Returns error on duplicate
// name, empty name, or a workflow with no steps.
func (r *Registry) Register(wf *Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if wf.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow name is empty")
	}
	if len(wf.Steps) == 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "workflow %q has no steps", wf.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[wf.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already registered", wf.Name)
	}

	r.workflows[wf.Name] = wf
	return nil
}

// Get retrieves a workflow by name.
func (r *Registry) Get(name string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not registered", name)
	}
	return wf, nil
}

// ByStepID retrieves the workflow owning the given step ID. Used by the
// resume endpoint, which identifies workflows by step identifier.
func (r *Registry) ByStepID(stepID string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, wf := range r.workflows {
		if wf.StepByID(stepID) != nil {
			return wf, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no workflow owns step %q", stepID)
}

// List returns info for all registered workflows, sorted by name.
func (r *Registry) List() []WorkflowInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]WorkflowInfo, 0, len(r.workflows))
	for _, wf := range r.workflows {
		infos = append(infos, WorkflowInfo{Name: wf.Name, Description: wf.Description})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
