package record

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind is the variant of a record, derived from its type list.
type Kind string

const (
	KindProject     Kind = "project"
	KindStep        Kind = "step"
	KindTask        Kind = "task"
	KindMeasurement Kind = "measurement"
	KindSample      Kind = "sample"
	KindProcedure   Kind = "procedure"
	KindCustom      Kind = "custom"
)

// TypeText is the first type element of every hierarchy record.
const TypeText = "text"

// Hierarchy lists the hierarchy kinds from root to leaf. The index of a kind
// is its depth, i.e. the expected length of its stack.
var Hierarchy = []Kind{KindProject, KindStep, KindTask}

// IsHierarchy reports whether k corresponds to a directory on disk.
func (k Kind) IsHierarchy() bool {
	return k == KindProject || k == KindStep || k == KindTask
}

// Depth returns the hierarchy depth of k, or -1 for leaf kinds.
func (k Kind) Depth() int {
	for i, h := range Hierarchy {
		if h == k {
			return i
		}
	}
	return -1
}

// TypeFor returns the type list stored for a new record of kind k.
func TypeFor(k Kind, subTypes ...string) []string {
	if k.IsHierarchy() {
		return []string{TypeText, string(k)}
	}
	return append([]string{string(k)}, subTypes...)
}

// KindOf derives the record kind from a type list.
func KindOf(typ []string) Kind {
	if len(typ) == 0 {
		return ""
	}
	if typ[0] == TypeText {
		if len(typ) < 2 {
			return ""
		}
		return Kind(typ[1])
	}
	switch Kind(typ[0]) {
	case KindMeasurement, KindSample, KindProcedure:
		return Kind(typ[0])
	}
	return KindCustom
}

// Op is the operation that produced a branch entry.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// LeafChild is the ordinal stored in the placements of leaf records, which
// have no sibling order.
const LeafChild = 9999

// Branch is one placement of a record in the hierarchy.
type Branch struct {
	Stack []string `json:"stack"`
	Child int      `json:"child"`
	Path  string   `json:"path"`
	Op    Op       `json:"op"`
}

// ProjectFields are only carried by project records.
type ProjectFields struct {
	Objective string `json:"objective,omitempty"`
	Status    string `json:"status,omitempty"`
}

// SampleFields are only carried by sample records.
type SampleFields struct {
	QRCode []string `json:"qrCode"`
}

// MeasurementFields are only carried by measurement records.
type MeasurementFields struct {
	Image      string         `json:"image"`
	ImageKind  string         `json:"imageKind,omitempty"`
	MetaVendor map[string]any `json:"metaVendor,omitempty"`
	MetaUser   map[string]any `json:"metaUser,omitempty"`
}

// Record is a document in the notebook: a common envelope plus at most one
// kind-specific field set. Embedded pointers are flattened when serialized.
type Record struct {
	ID          string         `json:"_id"`
	Rev         string         `json:"_rev,omitempty"`
	Type        []string       `json:"type"`
	Branch      []Branch       `json:"branch"`
	Name        string         `json:"name"`
	Comment     string         `json:"comment"`
	Tags        []string       `json:"tags"`
	Fields      map[string]any `json:"fields,omitempty"`
	ContentHash string         `json:"contentHash"`
	Date        string         `json:"date"`
	User        string         `json:"user"`
	Revision    int            `json:"revision"`

	*ProjectFields
	*SampleFields
	*MeasurementFields
}

// Kind returns the variant of r.
func (r *Record) Kind() Kind {
	return KindOf(r.Type)
}

// Current returns the current placement, which is always the last branch entry.
func (r *Record) Current() (Branch, bool) {
	if len(r.Branch) == 0 {
		return Branch{}, false
	}
	return r.Branch[len(r.Branch)-1], true
}

// Active reports whether the current placement is not retired.
func (r *Record) Active() bool {
	b, ok := r.Current()
	return ok && b.Op != OpDelete
}

// Path returns the on-disk path of the current placement.
func (r *Record) Path() string {
	b, _ := r.Current()
	return b.Path
}

// AppendBranch adds a placement to the history. History is never rewritten.
func (r *Record) AppendBranch(b Branch) {
	if b.Stack == nil {
		b.Stack = []string{}
	}
	r.Branch = append(r.Branch, b)
}

// SameType reports whether two type lists are equal.
func SameType(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IDPrefix returns the single character prefix used for ids of the given type.
func IDPrefix(typ []string) string {
	if len(typ) == 0 || typ[0] == "" {
		return "x"
	}
	r, _ := utf8.DecodeRuneInString(typ[0])
	return string(r)
}

// Validate checks that r carries exactly the fields its kind requires.
func (r *Record) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "_id", Message: "must not be empty"}
	}
	kind := r.Kind()
	if kind == "" {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %v", r.Type)}
	}
	if !strings.HasPrefix(r.ID, IDPrefix(r.Type)+"-") {
		return &ValidationError{Field: "_id", Message: fmt.Sprintf("prefix does not match type %s", r.Type[0])}
	}
	if kind.IsHierarchy() && strings.TrimSpace(r.Name) == "" {
		return &ValidationError{Field: "name", Message: "hierarchy records need a name"}
	}
	if r.ProjectFields != nil && kind != KindProject {
		return &ValidationError{Field: "objective", Message: "only projects carry an objective"}
	}
	if r.SampleFields != nil && kind != KindSample {
		return &ValidationError{Field: "qrCode", Message: "only samples carry qr codes"}
	}
	if r.MeasurementFields != nil && kind != KindMeasurement {
		return &ValidationError{Field: "image", Message: "only measurements carry an image"}
	}
	if kind == KindMeasurement && r.MeasurementFields == nil {
		return &ValidationError{Field: "image", Message: "measurements need image fields"}
	}
	if kind == KindSample && r.SampleFields == nil {
		return &ValidationError{Field: "qrCode", Message: "samples need a qr code list"}
	}
	if b, ok := r.Current(); ok {
		if kind == KindProject && b.Child != 0 {
			return &ValidationError{Field: "branch", Message: "projects have no sibling ordinal"}
		}
		if kind.IsHierarchy() && len(b.Stack) != kind.Depth() && b.Op != OpDelete {
			return &ValidationError{Field: "branch", Message: fmt.Sprintf("stack length %d does not match depth of %s", len(b.Stack), kind)}
		}
	}
	return nil
}

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}
