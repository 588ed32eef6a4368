package reconcile

import (
	"labtree/internal/record"
	"labtree/internal/report"
)

// snapshot writes or verifies the sidecar snapshot of a visited record,
// depending on the scan mode.
func (sc *scan) snapshot(rel, id string, isDir bool) {
	if sc.mode == ModePlain {
		return
	}
	doc, err := sc.store.GetDoc(sc.ctx, id)
	if err != nil {
		sc.addFault(faultFor(err, rel, id))
		return
	}
	snapRel := sc.files.SnapshotPath(rel, isDir)
	snapAbs := sc.nav.Abs(snapRel)

	switch sc.mode {
	case ModeProduce:
		if err := record.WriteJSON(snapAbs, doc); err != nil {
			sc.addFault(faultFor(err, rel, id))
			return
		}
		sc.logger.DebugContext(sc.ctx, "snapshot written", "path", snapRel, "doc_id", id)
	case ModeCompare:
		stored, err := record.ReadJSON(snapAbs)
		if err != nil {
			sc.addFault(newFault(report.KindSnapshotMismatch, report.SeverityWarning, rel, id, "no readable snapshot: %v", err))
			return
		}
		if !record.Equal(stored, doc) {
			sc.addFault(newFault(report.KindSnapshotMismatch, report.SeverityWarning, rel, id, "snapshot differs from database"))
			return
		}
		sc.logger.DebugContext(sc.ctx, "snapshot matches", "path", snapRel, "doc_id", id)
	}
}
