package reconcile

import (
	"errors"
	"os"

	"labtree/internal/hierarchy"
	"labtree/internal/record"
	"labtree/internal/report"
	"labtree/internal/storage"
)

func (sc *scan) visitDir(rel, abs string) {
	dbPath := sc.resolve(rel)
	marker, markerErr := sc.files.ReadMarker(abs)

	if row, ok := sc.index[dbPath]; ok {
		sc.visited[dbPath] = true
		sc.dirs[rel] = dirInfo{id: row.ID, stack: row.Value.Stack}
		sc.checkIndexedDir(rel, abs, dbPath, row, marker, markerErr)
		return
	}

	switch {
	case markerErr == nil:
		sc.adoptDir(rel, abs, marker)
	case errors.Is(markerErr, record.ErrMarkerMissing):
		sc.add(report.Result{
			Path:    rel,
			Outcome: report.OutcomeSkipped,
			Fault:   newFault(report.KindUntrackedDirectory, report.SeverityWarning, rel, "", "directory has no marker and is not in the database"),
		})
	default:
		sc.fail(rel, "", markerErr)
	}
}

// checkIndexedDir compares the marker of a directory the database knows with
// the database's view of that path.
func (sc *scan) checkIndexedDir(rel, abs, dbPath string, row storage.ViewRow, marker *record.Record, markerErr error) {
	if !record.KindOf(row.Value.Type).IsHierarchy() {
		sc.add(report.Result{Path: rel, DocID: row.ID, Outcome: report.OutcomeFailed,
			Fault: newFault(report.KindIdentityMismatch, report.SeverityError, rel, row.ID, "database records a %v file at this directory", row.Value.Type)})
		return
	}
	if errors.Is(markerErr, record.ErrMarkerMissing) {
		sc.add(report.Result{Path: rel, DocID: row.ID, Outcome: report.OutcomeFailed,
			Fault: newFault(report.KindIdentityMismatch, report.SeverityError, rel, row.ID, "marker file missing")})
		return
	}
	if markerErr != nil {
		sc.fail(rel, row.ID, markerErr)
		return
	}
	if marker.ID != row.ID || !record.SameType(marker.Type, row.Value.Type) {
		sc.add(report.Result{Path: rel, DocID: row.ID, Outcome: report.OutcomeFailed,
			Fault: newFault(report.KindIdentityMismatch, report.SeverityError, rel, row.ID,
				"marker names %s %v, database has %s %v", marker.ID, marker.Type, row.ID, row.Value.Type)})
		return
	}

	if marker.Path() == dbPath {
		sc.add(report.Result{Path: rel, DocID: row.ID, Outcome: report.OutcomeConsistent})
		sc.snapshot(rel, row.ID, true)
		return
	}

	// Same identity, different path: the database path wins.
	doc, err := sc.store.GetDoc(sc.ctx, row.ID)
	if err != nil {
		sc.fail(rel, row.ID, err)
		return
	}
	if sc.writes() {
		if err := sc.files.WriteMarker(abs, doc); err != nil {
			sc.fail(rel, row.ID, err)
			return
		}
	}
	sc.add(report.Result{Path: rel, DocID: row.ID, Outcome: report.OutcomeRepaired,
		Fault: newFault(report.KindRepaired, report.SeverityWarning, rel, row.ID,
			"marker path %q differs from database path %q, marker rewritten", marker.Path(), dbPath)})
	sc.snapshot(rel, row.ID, true)
}

// adoptDir handles a directory the database index does not know but whose
// marker names a record.
func (sc *scan) adoptDir(rel, abs string, marker *record.Record) {
	doc, err := sc.store.GetDoc(sc.ctx, marker.ID)
	if errors.Is(err, storage.ErrNotFound) {
		sc.add(report.Result{Path: rel, DocID: marker.ID, Outcome: report.OutcomeFailed,
			Fault: newFault(report.KindIdentityMismatch, report.SeverityError, rel, marker.ID, "marker names a record that does not exist")})
		return
	}
	if err != nil {
		sc.fail(rel, marker.ID, err)
		return
	}
	if !record.SameType(doc.Type, marker.Type) {
		sc.add(report.Result{Path: rel, DocID: doc.ID, Outcome: report.OutcomeFailed,
			Fault: newFault(report.KindIdentityMismatch, report.SeverityError, rel, doc.ID,
				"marker type %v differs from database type %v", marker.Type, doc.Type)})
		return
	}

	if dbPath := doc.Path(); doc.Active() && dbPath != "" && dbPath != rel {
		if _, err := os.Stat(sc.nav.Abs(dbPath)); err == nil {
			sc.add(report.Result{Path: rel, DocID: doc.ID, Outcome: report.OutcomeFailed,
				Fault: newFault(report.KindIdentityMismatch, report.SeverityError, rel, doc.ID,
					"record is also placed at %s, which still exists", dbPath)})
			return
		}
		if _, indexed := sc.index[dbPath]; indexed {
			sc.renamed(rel, abs, dbPath, doc)
			return
		}
	}
	sc.relink(rel, abs, marker, doc)
}

// renamed handles a directory that was renamed on disk: the database path is
// kept, the marker is rewritten from the database and everything below the
// directory is resolved through the database path.
func (sc *scan) renamed(rel, abs, dbPath string, doc *record.Record) {
	if sc.writes() {
		if err := sc.files.WriteMarker(abs, doc); err != nil {
			sc.fail(rel, doc.ID, err)
			return
		}
	}
	b, _ := doc.Current()
	sc.alias[rel] = dbPath
	sc.visited[dbPath] = true
	sc.dirs[rel] = dirInfo{id: doc.ID, stack: b.Stack}
	sc.add(report.Result{Path: rel, DocID: doc.ID, Outcome: report.OutcomeRepaired,
		Fault: newFault(report.KindRepaired, report.SeverityWarning, rel, doc.ID,
			"directory renamed on disk from %s, database path kept and marker rewritten", dbPath)})
	sc.snapshot(rel, doc.ID, true)
}

// relink restores the placement of a retired or unplaced record from its
// marker: a new update branch is appended at the directory's path.
func (sc *scan) relink(rel, abs string, marker, doc *record.Record) {
	mb, _ := marker.Current()
	stack := mb.Stack
	if _, ok := sc.dirs[hierarchy.Parent(rel)]; ok {
		stack = sc.inheritedStack(rel)
	}

	doc.AppendBranch(record.Branch{Stack: stack, Child: mb.Child, Path: rel, Op: record.OpUpdate})
	updated, err := sc.store.UpdateDoc(sc.ctx, doc)
	if err != nil {
		sc.fail(rel, doc.ID, err)
		return
	}
	if sc.writes() {
		if err := sc.files.WriteMarker(abs, updated); err != nil {
			sc.fail(rel, doc.ID, err)
			return
		}
	}
	sc.dirs[rel] = dirInfo{id: updated.ID, stack: updated.Branch[len(updated.Branch)-1].Stack}
	sc.add(report.Result{Path: rel, DocID: updated.ID, Outcome: report.OutcomeRelinked})
	if other := sc.siblingWithOrdinal(stack, mb.Child, updated.ID); other != "" {
		sc.addFault(newFault(report.KindSiblingConflict, report.SeverityWarning, rel, updated.ID,
			"restored ordinal %d is already used by %s", mb.Child, other))
	}
	sc.snapshot(rel, updated.ID, true)
}

// siblingWithOrdinal returns the id of an indexed step or task other than
// self that is placed below stack with the given ordinal.
func (sc *scan) siblingWithOrdinal(stack []string, child int, self string) string {
	key := storage.StackKey(stack)
	for _, row := range sc.index {
		k := record.KindOf(row.Value.Type)
		if row.ID == self || !k.IsHierarchy() || k == record.KindProject {
			continue
		}
		if row.Value.Child == child && storage.StackKey(row.Value.Stack) == key {
			return row.ID
		}
	}
	return ""
}
