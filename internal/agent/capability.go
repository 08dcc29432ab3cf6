package agent

import (
	"context"
	"fmt"

	"github.com/soyeahso/paxxium/internal/llm"
)

// CapabilityKind is the closed set of things the model may invoke.
type CapabilityKind string

const (
	KindSearch      CapabilityKind = "search"
	KindComputation CapabilityKind = "computation"
	KindMemorySave  CapabilityKind = "memory-save"
)

// ParseCapabilityKind maps a model supplied function name onto a kind.
func ParseCapabilityKind(name string) (CapabilityKind, error) {
	switch k := CapabilityKind(name); k {
	case KindSearch, KindComputation, KindMemorySave:
		return k, nil
	}
	return "", fmt.Errorf("unknown capability %q", name)
}

// Capability is one invokable variant.
type Capability interface {
	// Kind returns the tag the model uses to select this capability.
	Kind() CapabilityKind

	// Description returns a human-readable description for the LLM.
	Description() string

	// InputSchema returns the JSON Schema for the input.
	InputSchema() string

	// Invoke runs the capability with the given JSON input.
	Invoke(ctx context.Context, input string) (string, error)
}

// Capabilities holds the variants offered to one agent, in offer order.
type Capabilities struct {
	byKind map[CapabilityKind]Capability
	order  []CapabilityKind
}

// NewCapabilities creates a set. Nil entries are skipped and a later entry
// of the same kind replaces an earlier one.
func NewCapabilities(caps ...Capability) *Capabilities {
	s := &Capabilities{byKind: make(map[CapabilityKind]Capability)}
	for _, c := range caps {
		if c == nil {
			continue
		}
		if _, dup := s.byKind[c.Kind()]; !dup {
			s.order = append(s.order, c.Kind())
		}
		s.byKind[c.Kind()] = c
	}
	return s
}

// Get returns a capability by kind.
func (s *Capabilities) Get(kind CapabilityKind) (Capability, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.byKind[kind]
	return c, ok
}

// Len returns the number of capabilities.
func (s *Capabilities) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Definitions returns tool definitions for every capability.
func (s *Capabilities) Definitions() []llm.ToolDefinition {
	if s.Len() == 0 {
		return nil
	}
	defs := make([]llm.ToolDefinition, 0, len(s.order))
	for _, k := range s.order {
		c := s.byKind[k]
		defs = append(defs, llm.ToolDefinition{
			Name:        string(k),
			Description: c.Description(),
			InputSchema: c.InputSchema(),
		})
	}
	return defs
}

// Invoke parses the call's function name and runs the matching capability.
func (s *Capabilities) Invoke(ctx context.Context, call llm.ToolCall) (string, error) {
	kind, err := ParseCapabilityKind(call.Name)
	if err != nil {
		return "", err
	}
	c, ok := s.Get(kind)
	if !ok {
		return "", fmt.Errorf("capability %q not available", kind)
	}
	return c.Invoke(ctx, call.Input)
}
