package reconcile

import (
	"os"
	"path"

	"labtree/internal/extractor"
	"labtree/internal/fingerprint"
	"labtree/internal/record"
	"labtree/internal/report"
	"labtree/internal/storage"
)

func (sc *scan) visitFile(rel, abs string) {
	dbPath := sc.resolve(rel)
	row, indexed := sc.index[dbPath]
	if indexed {
		sc.visited[dbPath] = true
	}

	sum, err := sc.hasher.Hash(sc.ctx, abs)
	if err != nil {
		sc.fail(rel, row.ID, err)
		return
	}

	if !indexed {
		sc.placeFile(rel, abs, dbPath, sum)
		return
	}
	if record.KindOf(row.Value.Type).IsHierarchy() {
		sc.add(report.Result{Path: rel, DocID: row.ID, Outcome: report.OutcomeFailed,
			Fault: newFault(report.KindIdentityMismatch, report.SeverityError, rel, row.ID, "database records a directory at this file")})
		return
	}
	if sum != row.Value.ContentHash {
		sc.add(report.Result{Path: rel, DocID: row.ID, Outcome: report.OutcomeFailed,
			Fault: newFault(report.KindIntegrityFault, report.SeverityError, rel, row.ID,
				"content changed outside the notebook: recorded %s, found %s", row.Value.ContentHash, sum)})
	} else {
		sc.add(report.Result{Path: rel, DocID: row.ID, Outcome: report.OutcomeConsistent})
	}
	sc.snapshot(rel, row.ID, false)
}

// placeFile handles a file whose path the database does not know. A record
// with the same fingerprint whose file is gone has moved here; if its file
// still exists this is a duplicate. Otherwise a new record is registered.
func (sc *scan) placeFile(rel, abs, dbPath, sum string) {
	rows, err := sc.store.GetView(sc.ctx, storage.ViewContentHash, sum)
	if err != nil {
		sc.fail(rel, "", err)
		return
	}

	var moved *storage.ViewRow
	for i, row := range rows {
		old := row.Value.Path
		if old == "" || fingerprint.IsRemote(old) {
			continue
		}
		if _, err := os.Stat(sc.nav.Abs(old)); err == nil {
			sc.add(report.Result{Path: rel, DocID: row.ID, Outcome: report.OutcomeSkipped,
				Fault: newFault(report.KindDuplicateContent, report.SeverityWarning, rel, row.ID,
					"same content as %s, no record created", old)})
			return
		}
		if moved == nil {
			moved = &rows[i]
		}
	}

	stack := sc.inheritedStack(rel)
	if moved != nil {
		sc.move(rel, dbPath, stack, *moved)
		return
	}
	sc.register(rel, abs, dbPath, sum, stack)
}

func (sc *scan) move(rel, dbPath string, stack []string, row storage.ViewRow) {
	doc, err := sc.store.GetDoc(sc.ctx, row.ID)
	if err != nil {
		sc.fail(rel, row.ID, err)
		return
	}
	doc.AppendBranch(record.Branch{Stack: stack, Child: record.LeafChild, Path: dbPath, Op: record.OpUpdate})
	if _, err := sc.store.UpdateDoc(sc.ctx, doc); err != nil {
		sc.fail(rel, row.ID, err)
		return
	}
	sc.visited[row.Value.Path] = true
	sc.logger.InfoContext(sc.ctx, "file moved", "from", row.Value.Path, "to", dbPath, "doc_id", row.ID)
	sc.add(report.Result{Path: rel, DocID: row.ID, Outcome: report.OutcomeMoved})
	sc.snapshot(rel, row.ID, false)
}

func (sc *scan) register(rel, abs, dbPath, sum string, stack []string) {
	name := path.Base(rel)
	draft := &record.Record{Name: name}
	draft.AppendBranch(record.Branch{Stack: stack, Child: record.LeafChild, Path: dbPath, Op: record.OpCreate})

	res, err := sc.extractors.Extract(sc.ctx, abs, draft)
	if err != nil {
		sc.logger.WarnContext(sc.ctx, "extractor failed, registering without preview", "path", rel, "error", err)
		res = extractor.Result{}
	}

	rec, err := sc.builder.Normalize(map[string]any{"name": name}, res.Type(), "")
	if err != nil {
		sc.add(report.Result{Path: rel, Outcome: report.OutcomeFailed,
			Fault: newFault(report.KindInvalidRecord, report.SeverityError, rel, "", "%v", err)})
		return
	}
	rec.ContentHash = sum
	rec.Branch = draft.Branch

	if rec.MeasurementFields != nil {
		rec.MetaVendor = res.Meta.MetaVendor
		rec.MetaUser = res.Meta.MetaUser
		rec.ImageKind = string(res.Kind)
		if ext := res.Kind.Ext(); ext != "" && len(res.Preview) > 0 {
			rec.Image = sc.files.PreviewPath(dbPath, ext)
			if sc.writes() {
				if err := os.WriteFile(sc.nav.Abs(sc.files.PreviewPath(rel, ext)), res.Preview, 0644); err != nil {
					sc.logger.WarnContext(sc.ctx, "failed to write preview", "path", rel, "error", err)
				}
			}
		}
	} else if len(res.Meta.MetaVendor) > 0 {
		if rec.Fields == nil {
			rec.Fields = make(map[string]any, len(res.Meta.MetaVendor))
		}
		for k, v := range res.Meta.MetaVendor {
			rec.Fields[k] = v
		}
	}

	saved, err := sc.store.SaveDoc(sc.ctx, rec)
	if err != nil {
		sc.fail(rel, rec.ID, err)
		return
	}
	sc.add(report.Result{Path: rel, DocID: saved.ID, Outcome: report.OutcomeRegistered})
	sc.snapshot(rel, saved.ID, false)
}
