package core

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentforge/logging"
)

// DiagnosticLevel classifies a non-fatal finding.
type DiagnosticLevel string

const (
	DiagnosticWarn  DiagnosticLevel = "warn"
	DiagnosticError DiagnosticLevel = "error"
)

// Diagnostic is a best-effort degradation recorded instead of failing: a tool
// skipped, a credential missing, a parameter that could not be parsed.
type Diagnostic struct {
	Level     DiagnosticLevel `json:"level"`
	Component string          `json:"component"`
	Node      string          `json:"node,omitempty"`
	Message   string          `json:"message"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(string(d.Level))
	b.WriteString(" [")
	b.WriteString(d.Component)
	if d.Node != "" {
		b.WriteString("/")
		b.WriteString(d.Node)
	}
	b.WriteString("] ")
	b.WriteString(d.Message)
	return b.String()
}

// Diagnostics is an ordered list of findings.
type Diagnostics []Diagnostic

// Warnf appends a warn-level diagnostic.
func (ds *Diagnostics) Warnf(component, node, format string, args ...any) {
	*ds = append(*ds, Diagnostic{Level: DiagnosticWarn, Component: component, Node: node, Message: fmt.Sprintf(format, args...)})
}

// Errorf appends an error-level diagnostic. The run still continues.
func (ds *Diagnostics) Errorf(component, node, format string, args ...any) {
	*ds = append(*ds, Diagnostic{Level: DiagnosticError, Component: component, Node: node, Message: fmt.Sprintf(format, args...)})
}

// Append adds all of other in order.
func (ds *Diagnostics) Append(other Diagnostics) {
	*ds = append(*ds, other...)
}

// HasErrors reports whether any entry is error-level.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Level == DiagnosticError {
			return true
		}
	}
	return false
}

// Log writes every entry to l at its level.
func (ds Diagnostics) Log(l logging.Logger) {
	if l == nil {
		return
	}
	for _, d := range ds {
		args := []any{"component", d.Component, "node", d.Node, "message", d.Message}
		if d.Level == DiagnosticError {
			l.Error("diagnostic", args...)
		} else {
			l.Warn("diagnostic", args...)
		}
	}
}
