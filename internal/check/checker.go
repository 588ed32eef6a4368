// Package check audits the whole document store for structural consistency,
// independent of any scan root.
package check

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"labtree/internal/contextutil"
	"labtree/internal/fingerprint"
	"labtree/internal/hierarchy"
	"labtree/internal/record"
	"labtree/internal/report"
	"labtree/internal/storage"
)

// Checker verifies ancestry references, sibling ordinals, record shape and
// on-disk presence of every record in the store.
type Checker struct {
	store storage.DocStore
	base  string
}

// NewChecker creates a Checker. basePath is the root of the on-disk tree that
// record paths are relative to.
func NewChecker(store storage.DocStore, basePath string) *Checker {
	return &Checker{store: store, base: basePath}
}

type sibling struct {
	id    string
	path  string
	child int
}

// Check audits every record. Faults are collected in the report; an error is
// only returned when the record list cannot be loaded.
func (c *Checker) Check(ctx context.Context) (*report.Report, error) {
	logger := contextutil.LoggerFromContext(ctx)

	rows, err := c.store.GetView(ctx, storage.ViewAll, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	rep := report.New("")
	logger.InfoContext(ctx, "check started", "records", len(rows))

	known := make(map[string]bool, len(rows))
	for _, row := range rows {
		known[row.ID] = true
	}

	detached := false
	if info, err := os.Stat(c.base); err != nil || !info.IsDir() {
		detached = true
		rep.AddFault(report.Fault{
			Kind:     report.KindStorageDetached,
			Severity: report.SeverityInfo,
			Path:     c.base,
			Message:  "base path unavailable, file presence not verified",
		})
	}

	siblings := make(map[string][]sibling)
	hashes := make(map[string][]string)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		doc, err := c.store.GetDoc(ctx, row.ID)
		if err != nil {
			addRecord(rep, row.Value.Path, row.ID, []report.Fault{fault(report.KindStoreFailure, report.SeverityError, row, "%v", err)})
			continue
		}

		var faults []report.Fault
		b, placed := doc.Current()
		active := doc.Active()

		if missing := missingAncestors(b.Stack, known); len(missing) > 0 {
			faults = append(faults, fault(report.KindReferentialError, report.SeverityError, row,
				"stack references missing records %s", strings.Join(missing, ", ")))
		}
		faults = append(faults, shapeFaults(doc, row)...)

		if active && placed {
			kind := doc.Kind()
			if kind.IsHierarchy() && kind != record.KindProject {
				key := storage.StackKey(b.Stack)
				siblings[key] = append(siblings[key], sibling{id: doc.ID, path: b.Path, child: b.Child})
				if b.Child > hierarchy.MaxOrdinal {
					faults = append(faults, fault(report.KindOrdinalOverflow, report.SeverityWarning, row,
						"ordinal %d does not fit three digits", b.Child))
				}
			}
			if doc.ContentHash != "" {
				hashes[doc.ContentHash] = append(hashes[doc.ContentHash], doc.ID)
			}
			if !detached && b.Path != "" && !fingerprint.IsRemote(b.Path) {
				if _, err := os.Stat(filepath.Join(c.base, filepath.FromSlash(b.Path))); errors.Is(err, os.ErrNotExist) {
					faults = append(faults, fault(report.KindMissingPath, report.SeverityWarning, row, "path does not exist on disk"))
				}
			}
		}
		addRecord(rep, b.Path, doc.ID, faults)
	}

	siblingFaults(rep, siblings)
	duplicateFaults(rep, hashes)

	logger.InfoContext(ctx, "check finished",
		"records", len(rows),
		"errors", rep.Count(report.SeverityError),
		"warnings", rep.Count(report.SeverityWarning),
	)
	return rep, nil
}

func addRecord(rep *report.Report, path, id string, faults []report.Fault) {
	outcome := report.OutcomeConsistent
	for _, f := range faults {
		rep.AddFault(f)
		if f.Severity == report.SeverityError {
			outcome = report.OutcomeFailed
		}
	}
	rep.Add(report.Result{Path: path, DocID: id, Outcome: outcome})
}

func fault(kind report.Kind, sev report.Severity, row storage.ViewRow, format string, args ...any) report.Fault {
	return report.Fault{Kind: kind, Severity: sev, Path: row.Value.Path, DocID: row.ID, Message: fmt.Sprintf(format, args...)}
}

func missingAncestors(stack []string, known map[string]bool) []string {
	var missing []string
	for _, id := range stack {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// shapeFaults reports a hierarchy record at the wrong depth, or any other
// violation of the record's kind constraints.
func shapeFaults(doc *record.Record, row storage.ViewRow) []report.Fault {
	kind := doc.Kind()
	if b, ok := doc.Current(); ok && kind.IsHierarchy() && b.Op != record.OpDelete && len(b.Stack) != kind.Depth() {
		return []report.Fault{fault(report.KindDepthMismatch, report.SeverityError, row,
			"%s has %d ancestors, want %d", kind, len(b.Stack), kind.Depth())}
	}
	if err := doc.Validate(); err != nil {
		return []report.Fault{fault(report.KindInvalidRecord, report.SeverityError, row, "%v", err)}
	}
	return nil
}

func siblingFaults(rep *report.Report, groups map[string][]sibling) {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		byChild := make(map[int][]sibling)
		for _, s := range groups[key] {
			byChild[s.child] = append(byChild[s.child], s)
		}
		children := make([]int, 0, len(byChild))
		for child := range byChild {
			children = append(children, child)
		}
		sort.Ints(children)

		for _, child := range children {
			group := byChild[child]
			if len(group) < 2 {
				continue
			}
			sort.Slice(group, func(i, j int) bool { return group[i].id < group[j].id })
			ids := make([]string, len(group))
			for i, s := range group {
				ids[i] = s.id
			}
			rep.AddFault(report.Fault{
				Kind:     report.KindSiblingConflict,
				Severity: report.SeverityError,
				Path:     group[0].path,
				DocID:    group[0].id,
				Message:  fmt.Sprintf("siblings %s share ordinal %d", strings.Join(ids, ", "), child),
			})
		}
	}
}

func duplicateFaults(rep *report.Report, hashes map[string][]string) {
	sums := make([]string, 0, len(hashes))
	for sum, ids := range hashes {
		if len(ids) > 1 {
			sums = append(sums, sum)
		}
	}
	sort.Strings(sums)

	for _, sum := range sums {
		ids := hashes[sum]
		sort.Strings(ids)
		rep.AddFault(report.Fault{
			Kind:     report.KindDuplicateContent,
			Severity: report.SeverityWarning,
			DocID:    ids[0],
			Message:  fmt.Sprintf("records %s share content %s", strings.Join(ids, ", "), sum),
		})
	}
}
