// Package passes holds analyses that run over the IR between validation
// and code generation.
package passes

import (
	"fmt"

	"kernelgen/internal/ir"
)

// Pass is one analysis or transformation over a module.
type Pass interface {
	Name() string
	Run(module *ir.Module) error
}

// Manager runs passes in the order they were added.
type Manager struct {
	passes []Pass
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends p to the pipeline.
func (m *Manager) Add(p Pass) {
	m.passes = append(m.passes, p)
}

// Run executes every pass, stopping at the first failure.
func (m *Manager) Run(module *ir.Module) error {
	for _, p := range m.passes {
		if err := p.Run(module); err != nil {
			return fmt.Errorf("pass %s: %w", p.Name(), err)
		}
	}
	return nil
}
