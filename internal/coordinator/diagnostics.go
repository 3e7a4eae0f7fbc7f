package coordinator

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dreamware/groupsync/internal/cluster"
)

// DiagnosticKind classifies an operator-facing diagnostic.
type DiagnosticKind string

const (
	// DiagnosticCompensationIncomplete means a compensating call failed and
	// the host may still hold the effect of the failed pass.
	DiagnosticCompensationIncomplete DiagnosticKind = "CompensationIncomplete"
	// DiagnosticPassAborted means a pass stopped on a transport failure and
	// was not compensated.
	DiagnosticPassAborted DiagnosticKind = "PassAborted"
)

// Diagnostic is a condition an operator has to look at by hand.
// Diagnostics are never returned as errors.
type Diagnostic struct {
	Kind    DiagnosticKind
	PassID  string
	Phase   cluster.Phase
	GroupID string
	Host    string
	Err     error

	// Set on PassAborted only. Succeeded lists the hosts whose call
	// succeeded before the abort; Unknown lists every host whose call
	// failed, so its state could not be determined.
	Succeeded []string
	Unknown   []string
}

// Message renders the diagnostic for humans.
func (d Diagnostic) Message() string {
	switch d.Kind {
	case DiagnosticCompensationIncomplete:
		return fmt.Sprintf("failed to roll back group %s %s on %s, inspect manually", d.GroupID, phaseNoun(d.Phase), d.Host)
	case DiagnosticPassAborted:
		msg := fmt.Sprintf("%s pass for group %s aborted at %s, cluster may be partially updated", d.Phase, d.GroupID, d.Host)
		if len(d.Succeeded) > 0 {
			msg += fmt.Sprintf(" (succeeded on: %s)", strings.Join(d.Succeeded, ", "))
		}
		if len(d.Unknown) > 0 {
			msg += fmt.Sprintf(" (state unknown on: %s)", strings.Join(d.Unknown, ", "))
		}
		return msg
	default:
		return fmt.Sprintf("%s: group %s on %s", d.Kind, d.GroupID, d.Host)
	}
}

func phaseNoun(p cluster.Phase) string {
	if p == cluster.PhaseCreate {
		return "creation"
	}
	return "deletion"
}

// DiagnosticSink receives diagnostics. Report must not block for long;
// it is called inline by the compensation sweep.
type DiagnosticSink interface {
	Report(Diagnostic)
}

// DiagnosticFunc adapts a function to DiagnosticSink.
type DiagnosticFunc func(Diagnostic)

// Report calls f(d).
func (f DiagnosticFunc) Report(d Diagnostic) { f(d) }

// LogSink writes diagnostics as structured error logs.
type LogSink struct {
	Logger *zap.Logger
}

// Report logs d at error level with its fields.
func (s LogSink) Report(d Diagnostic) {
	fields := []zap.Field{
		zap.String("kind", string(d.Kind)),
		zap.String("passId", d.PassID),
		zap.String("phase", string(d.Phase)),
		zap.String("groupId", d.GroupID),
		zap.String("host", d.Host),
	}
	if d.Kind == DiagnosticPassAborted {
		fields = append(fields, zap.Strings("succeeded", d.Succeeded), zap.Strings("unknown", d.Unknown))
	}
	if d.Err != nil {
		fields = append(fields, zap.Error(d.Err))
	}
	s.Logger.Error(d.Message(), fields...)
}

// Recorder keeps every diagnostic it is given.
type Recorder struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

// Report appends d.
func (r *Recorder) Report(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, d)
}

// Diagnostics returns a copy of what has been recorded so far.
func (r *Recorder) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.diagnostics...)
}

type multiSink []DiagnosticSink

func (m multiSink) Report(d Diagnostic) {
	for _, s := range m {
		s.Report(d)
	}
}

// MultiSink fans each diagnostic out to every non-nil sink in order.
func MultiSink(sinks ...DiagnosticSink) DiagnosticSink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
