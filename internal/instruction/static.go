// Package instruction supplies optional per-model system instructions to
// the dispatcher. Lookups that fail for any reason degrade to absent; an
// instruction store can never fail a generation.
package instruction

import (
	"context"
	"sync"
)

// Static is an in-memory instruction store. A model-specific instruction
// wins over the default one.
type Static struct {
	mu           sync.RWMutex
	byModel      map[string]string
	defaultValue string
}

// NewStatic creates a new in-memory instruction store.
func NewStatic() *Static {
	return &Static{
		mu:      sync.RWMutex{},
		byModel: make(map[string]string),
	}
}

// Set stores an instruction for one model id.
func (s *Static) Set(modelID, instruction string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byModel[modelID] = instruction
}

// SetDefault stores the instruction used when a model has no specific one.
func (s *Static) SetDefault(instruction string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultValue = instruction
}

// Lookup returns the instruction for a model id, if any.
func (s *Static) Lookup(_ context.Context, modelID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if instruction, ok := s.byModel[modelID]; ok && instruction != "" {
		return instruction, true
	}
	if s.defaultValue != "" {
		return s.defaultValue, true
	}
	return "", false
}
