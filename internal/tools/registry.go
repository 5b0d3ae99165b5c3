// Package tools provides the typed tool registry the planner dispatches to.
// Plans reference tools by name; lookup is an explicit fallible operation so
// a plan naming an unregistered tool can degrade instead of crash.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RiskLevel indicates how dangerous a tool invocation is.
type RiskLevel int

const (
	RiskNone   RiskLevel = iota // pure computation
	RiskLow                     // local reads
	RiskMedium                  // network calls
	RiskHigh                    // state modification
)

// String returns a human-readable risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskNone:
		return "none"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Tool is an executable capability the planner can schedule.
type Tool interface {
	// Name returns the tool identifier plans reference.
	Name() string

	// Description is the one-liner shown to the planning LLM.
	Description() string

	// Risk reports the invocation risk class.
	Risk() RiskLevel

	// Execute runs the tool. Errors are execution failures; contract
	// violations in input should come back as a failed Result instead.
	Execute(ctx context.Context, input map[string]any) (*Result, error)
}

// Result is the outcome of one tool execution.
type Result struct {
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
}

// Info describes a registered tool for planning prompts.
type Info struct {
	Name        string
	Description string
	Risk        RiskLevel
}

// Registry holds the available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Catalog lists registered tools sorted by name.
func (r *Registry) Catalog() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Info{Name: t.Name(), Description: t.Description(), Risk: t.Risk()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute dispatches to a tool by name. An unknown tool is an error; a tool
// that fails internally comes back as a failed Result with Success=false.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (*Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool not registered: %s", name)
	}

	start := time.Now()
	res, err := tool.Execute(ctx, input)
	if err != nil {
		return &Result{
			Success:       false,
			Error:         err.Error(),
			ExecutionTime: time.Since(start),
		}, nil
	}
	if res.ExecutionTime == 0 {
		res.ExecutionTime = time.Since(start)
	}
	return res, nil
}
