// Package diag collects compiler diagnostics and renders them as text or
// JSON. A single Reporter is threaded through the frontend and every pass so
// all messages share one output stream and one error count.
package diag

import (
	"encoding/json"
	"fmt"
	"go/token"
	"io"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one reported issue with an optional source position.
type Diagnostic struct {
	Severity Severity
	Pos      token.Pos
	Message  string
}

// Reporter accumulates diagnostics and writes them to w as they arrive.
// Format is "text" or "json"; anything else falls back to text.
type Reporter struct {
	w        io.Writer
	format   string
	fset     *token.FileSet
	errors   int
	warnings int
	all      []Diagnostic
}

// NewReporter builds a reporter writing to w in the given format.
func NewReporter(w io.Writer, format string) *Reporter {
	return &Reporter{w: w, format: format}
}

// SetFileSet attaches a file set used to render positions. Optional; without
// it positions are omitted from output.
func (r *Reporter) SetFileSet(fset *token.FileSet) {
	r.fset = fset
}

// Error reports a fatal issue at pos.
func (r *Reporter) Error(pos token.Pos, msg string) {
	r.emit(Diagnostic{Severity: SeverityError, Pos: pos, Message: msg})
}

// Errorf reports a fatal issue at pos with printf formatting.
func (r *Reporter) Errorf(pos token.Pos, format string, args ...any) {
	r.emit(Diagnostic{Severity: SeverityError, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Warning reports a non-fatal advisory at pos.
func (r *Reporter) Warning(pos token.Pos, msg string) {
	r.emit(Diagnostic{Severity: SeverityWarning, Pos: pos, Message: msg})
}

// Warningf reports a non-fatal advisory at pos with printf formatting.
func (r *Reporter) Warningf(pos token.Pos, format string, args ...any) {
	r.emit(Diagnostic{Severity: SeverityWarning, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any error-severity diagnostic was emitted.
func (r *Reporter) HasErrors() bool {
	return r.errors > 0
}

// ErrorCount returns the number of error-severity diagnostics.
func (r *Reporter) ErrorCount() int {
	return r.errors
}

// WarningCount returns the number of warning-severity diagnostics.
func (r *Reporter) WarningCount() int {
	return r.warnings
}

// Diagnostics returns everything reported so far in emission order.
func (r *Reporter) Diagnostics() []Diagnostic {
	return r.all
}

func (r *Reporter) emit(d Diagnostic) {
	if d.Severity == SeverityError {
		r.errors++
	} else {
		r.warnings++
	}
	r.all = append(r.all, d)
	if r.w == nil {
		return
	}
	if r.format == "json" {
		payload := struct {
			Severity string `json:"severity"`
			Position string `json:"position,omitempty"`
			Message  string `json:"message"`
		}{
			Severity: d.Severity.String(),
			Position: r.position(d.Pos),
			Message:  d.Message,
		}
		enc := json.NewEncoder(r.w)
		_ = enc.Encode(payload)
		return
	}
	if loc := r.position(d.Pos); loc != "" {
		fmt.Fprintf(r.w, "%s: %s: %s\n", loc, d.Severity, d.Message)
		return
	}
	fmt.Fprintf(r.w, "%s: %s\n", d.Severity, d.Message)
}

func (r *Reporter) position(pos token.Pos) string {
	if r.fset == nil || !pos.IsValid() {
		return ""
	}
	return r.fset.Position(pos).String()
}
