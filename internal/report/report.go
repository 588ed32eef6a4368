// Package report accumulates the outcome of scans and consistency checks.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity ranks a fault.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Kind classifies a fault.
type Kind string

const (
	KindIdentityMismatch   Kind = "IdentityMismatch"
	KindIntegrityFault     Kind = "IntegrityFault"
	KindReferentialError   Kind = "ReferentialError"
	KindMarkerCorrupt      Kind = "MarkerCorrupt"
	KindNotSupported       Kind = "NotSupported"
	KindTransportError     Kind = "TransportError"
	KindSnapshotMismatch   Kind = "SnapshotMismatch"
	KindDuplicateContent   Kind = "DuplicateContent"
	KindUntrackedDirectory Kind = "UntrackedDirectory"
	KindMissingPath        Kind = "MissingPath"
	KindSiblingConflict    Kind = "SiblingConflict"
	KindDepthMismatch      Kind = "DepthMismatch"
	KindInvalidRecord      Kind = "InvalidRecord"
	KindOrdinalOverflow    Kind = "OrdinalOverflow"
	KindStoreFailure       Kind = "StoreFailure"
	// KindRepaired marks drift that was fixed automatically.
	KindRepaired Kind = "Repaired"
	// KindStorageDetached is reported once when the base path is unavailable.
	KindStorageDetached Kind = "StorageDetached"
)

// Fault is a single finding.
type Fault struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Path     string   `json:"path,omitempty"`
	DocID    string   `json:"docId,omitempty"`
	Message  string   `json:"message"`
}

func (f Fault) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-7s %s", strings.ToUpper(f.Severity.String()), f.Kind)
	if f.Path != "" {
		fmt.Fprintf(&b, " %s", f.Path)
	}
	if f.DocID != "" {
		fmt.Fprintf(&b, " [%s]", f.DocID)
	}
	if f.Message != "" {
		fmt.Fprintf(&b, ": %s", f.Message)
	}
	return b.String()
}

// Outcome is what happened to one path during a scan.
type Outcome string

const (
	OutcomeConsistent Outcome = "consistent"
	OutcomeRegistered Outcome = "registered"
	OutcomeRelinked   Outcome = "relinked"
	OutcomeMoved      Outcome = "moved"
	OutcomeRepaired   Outcome = "repaired"
	OutcomeRetired    Outcome = "retired"
	OutcomeSnapshot   Outcome = "snapshot"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

// Result is the handling of one path: an outcome and, optionally, the fault
// that was found on the way.
type Result struct {
	Path    string  `json:"path"`
	DocID   string  `json:"docId,omitempty"`
	Outcome Outcome `json:"outcome"`
	Fault   *Fault  `json:"fault,omitempty"`
}

// Report collects results and faults of one scan or check.
type Report struct {
	Root    string   `json:"root,omitempty"`
	Results []Result `json:"results"`
	Faults  []Fault  `json:"faults"`
}

// New returns an empty report for root.
func New(root string) *Report {
	return &Report{Root: root, Results: []Result{}, Faults: []Fault{}}
}

// Add records a path result; its fault, if any, is also added to Faults.
func (r *Report) Add(res Result) {
	r.Results = append(r.Results, res)
	if res.Fault != nil {
		r.Faults = append(r.Faults, *res.Fault)
	}
}

// AddFault records a fault not tied to a traversal step.
func (r *Report) AddFault(f Fault) {
	r.Faults = append(r.Faults, f)
}

// Count returns the number of faults with the given severity.
func (r *Report) Count(s Severity) int {
	n := 0
	for _, f := range r.Faults {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// CountKind returns the number of faults of kind k.
func (r *Report) CountKind(k Kind) int {
	n := 0
	for _, f := range r.Faults {
		if f.Kind == k {
			n++
		}
	}
	return n
}

// HasErrors reports whether any fault is in the error tier.
func (r *Report) HasErrors() bool {
	return r.Count(SeverityError) > 0
}

// Outcomes counts results by outcome.
func (r *Report) Outcomes() map[Outcome]int {
	out := make(map[Outcome]int)
	for _, res := range r.Results {
		out[res.Outcome]++
	}
	return out
}

// Filter returns the faults at or above min.
func (r *Report) Filter(min Severity) []Fault {
	var out []Fault
	for _, f := range r.Faults {
		if f.Severity >= min {
			out = append(out, f)
		}
	}
	return out
}

// String renders the report as text, one fault per line followed by a summary.
func (r *Report) String() string {
	var b strings.Builder
	for _, f := range r.Faults {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%d paths, %d errors, %d warnings, %d info",
		len(r.Results), r.Count(SeverityError), r.Count(SeverityWarning), r.Count(SeverityInfo))
	return b.String()
}

// JSON encodes the report.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
