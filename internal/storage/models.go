package storage

import "time"

// View names understood by DocStore.GetView.
const (
	// ViewPaths lists active placements with a path, keyed by root project id.
	ViewPaths = "paths"
	// ViewHierarchy lists active records whose stack equals the key.
	ViewHierarchy = "hierarchy"
	// ViewContentHash lists active file-backed records, keyed by fingerprint.
	ViewContentHash = "contentHash"
	// ViewType lists active records of one kind.
	ViewType = "type"
	// ViewAll lists every record including retired ones.
	ViewAll = "all"
)

// ViewRow is one row of a view.
type ViewRow struct {
	ID    string    `json:"id"`
	Key   string    `json:"key"`
	Value ViewValue `json:"value"`
}

// ViewValue is the projection of a record emitted by every view.
type ViewValue struct {
	Path        string   `json:"path"`
	Type        []string `json:"type"`
	Name        string   `json:"name"`
	ContentHash string   `json:"contentHash,omitempty"`
	Stack       []string `json:"stack"`
	Child       int      `json:"child"`
	Op          string   `json:"op"`
}

// Scan is a stored summary of a finished scan or check.
type Scan struct {
	ID        int
	RootID    string // Project id, empty for whole-database checks
	Mode      string // plain, produce, compare or check
	Paths     int
	Errors    int
	Warnings  int
	CreatedAt time.Time
}
