package agent

import "github.com/hupe1980/agentforge/core"

// Provider computes instruction text for a run.
type Provider interface {
	Instruction(*core.RunContext) (string, error)
}

// Instruction is the system instruction of a model agent: fixed text taken
// from the stored definition, or a function evaluated per run. The zero
// value resolves to "".
type Instruction struct {
	text    string
	dynamic func(*core.RunContext) (string, error)
}

// NewInstructionFromText returns a fixed instruction.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

func NewInstructionFromProvider(p Provider) Instruction { return Instruction{dynamic: p.Instruction} }

func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{dynamic: f}
}

// IsStatic reports whether the text is fixed.
func (i Instruction) IsStatic() bool { return i.dynamic == nil }

// Resolve returns the text for rc. State placeholders are rendered later by
// the request pipeline, not here.
func (i Instruction) Resolve(rc *core.RunContext) (string, error) {
	if i.dynamic == nil {
		return i.text, nil
	}
	return i.dynamic(rc)
}
