// Package verifyreport implements VerifyCliOutput.v1, the unified report
// the offline verifier and its CLI emit. Two independent implementations
// of this module must produce byte-identical
// canonicalJsonStringify(stableSlice(output)) for the same input bundle
// and mode; StableSlice exists specifically to pin down that comparable
// projection.
package verifyreport

import (
	"fmt"
	"sort"

	"github.com/ledgerspine/spine/pkg/canonjson"
)

// SchemaVersion is the fixed schema tag carried on every report.
const SchemaVersion = "VerifyCliOutput.v1"

// Mode is one of the three verification modes spec §4.6 defines.
type Mode string

const (
	ModeNonStrict      Mode = "non-strict"
	ModeStrict         Mode = "strict"
	ModeFailOnWarnings Mode = "fail-on-warnings"
)

// Tool identifies the program that produced the report.
type Tool struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Commit  string `json:"commit,omitempty"`
}

// TargetKind distinguishes a directory target from a zip target.
type TargetKind string

const (
	TargetDir TargetKind = "dir"
	TargetZip TargetKind = "zip"
)

// Target identifies what was verified.
type Target struct {
	Kind TargetKind `json:"kind"`
	Path string     `json:"path"`
}

// Diagnostic is one error or warning entry, tagged with the closed error
// code set from spec §7 and, where applicable, the file path it concerns.
type Diagnostic struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
}

// Output is the full VerifyCliOutput.v1 report.
type Output struct {
	SchemaVersion  string       `json:"schemaVersion"`
	Tool           Tool         `json:"tool"`
	Mode           Mode         `json:"mode"`
	Target         Target       `json:"target"`
	OK             bool         `json:"ok"`
	VerificationOK bool         `json:"verificationOk"`
	Errors         []Diagnostic `json:"errors"`
	Warnings       []Diagnostic `json:"warnings"`
	Summary        string       `json:"summary"`
}

// New starts a report in the given mode against target, with no
// diagnostics yet. Call Finalize once every check has run.
func New(tool Tool, mode Mode, target Target) *Output {
	return &Output{
		SchemaVersion: SchemaVersion,
		Tool:          tool,
		Mode:          mode,
		Target:        target,
		Errors:        []Diagnostic{},
		Warnings:      []Diagnostic{},
	}
}

// AddError records a hard verification failure. Errors never affect only
// VerificationOK by convention; they always also fail OK.
func (o *Output) AddError(code, path, message string) {
	o.Errors = append(o.Errors, Diagnostic{Code: code, Path: path, Message: message})
}

// AddWarning records an informational issue: present regardless of mode,
// but only promoted to a failure under ModeFailOnWarnings.
func (o *Output) AddWarning(code, path, message string) {
	o.Warnings = append(o.Warnings, Diagnostic{Code: code, Path: path, Message: message})
}

func sortDiagnostics(d []Diagnostic) {
	sort.Slice(d, func(i, j int) bool {
		if d[i].Path != d[j].Path {
			return d[i].Path < d[j].Path
		}
		return d[i].Code < d[j].Code
	})
}

// Finalize sorts diagnostics deterministically (by path, then code),
// computes VerificationOK and OK from the accumulated errors/warnings and
// mode, and fills Summary. It is idempotent.
func (o *Output) Finalize() {
	sortDiagnostics(o.Errors)
	sortDiagnostics(o.Warnings)
	o.VerificationOK = len(o.Errors) == 0
	switch o.Mode {
	case ModeFailOnWarnings:
		o.OK = o.VerificationOK && len(o.Warnings) == 0
	default:
		o.OK = o.VerificationOK
	}
	switch {
	case o.OK:
		o.Summary = fmt.Sprintf("verified ok (%d warning(s))", len(o.Warnings))
	case !o.VerificationOK:
		o.Summary = fmt.Sprintf("failed verification: %d error(s)", len(o.Errors))
	default:
		o.Summary = fmt.Sprintf("failed under fail-on-warnings: %d warning(s)", len(o.Warnings))
	}
}

// StableSlice is the cross-implementation comparison projection spec §4.7
// requires: schemaVersion, tool name only (not version/commit, which are
// implementation-specific), mode, target kind (not path, which varies by
// filesystem), ok, verificationOk, and the sorted diagnostic lists.
type StableSlice struct {
	SchemaVersion  string       `json:"schemaVersion"`
	ToolName       string       `json:"toolName"`
	Mode           Mode         `json:"mode"`
	TargetKind     TargetKind   `json:"targetKind"`
	OK             bool         `json:"ok"`
	VerificationOK bool         `json:"verificationOk"`
	Errors         []Diagnostic `json:"errors"`
	Warnings       []Diagnostic `json:"warnings"`
	Summary        string       `json:"summary"`
}

// Stable projects o into its cross-implementation-comparable form. Call
// after Finalize so diagnostics are already sorted.
func (o *Output) Stable() StableSlice {
	return StableSlice{
		SchemaVersion:  o.SchemaVersion,
		ToolName:       o.Tool.Name,
		Mode:           o.Mode,
		TargetKind:     o.Target.Kind,
		OK:             o.OK,
		VerificationOK: o.VerificationOK,
		Errors:         o.Errors,
		Warnings:       o.Warnings,
		Summary:        o.Summary,
	}
}

// CanonicalJSON renders canonicalJsonStringify(stableSlice(o)), the exact
// byte sequence two independent implementations must agree on.
func (o *Output) CanonicalJSON() ([]byte, error) {
	return canonjson.Marshal(o.Stable())
}

// JSON renders the full (non-stable) report as canonical JSON, the form
// written to --json-out.
func (o *Output) JSON() ([]byte, error) {
	return canonjson.Marshal(o)
}
