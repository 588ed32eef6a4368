package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"labtree/internal/envelope"
	"labtree/internal/extractor"
	"labtree/internal/fingerprint"
	"labtree/internal/hierarchy"
	"labtree/internal/record"
	"labtree/internal/report"
	"labtree/internal/storage"
	"labtree/internal/storage/mocks"
)

const sampleCSV = "time,force\n0,1.5\n1,2.5\n2,2.0\n"

type fixture struct {
	t       *testing.T
	ctx     context.Context
	base    string
	store   *storage.DocRepo
	files   record.Files
	scanner *Scanner
	nav     hierarchy.NavigationContext
}

// newFixture creates a project "Project" (t-p) with one step
// "Project/001_Step" (t-s).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	require.NoError(t, storage.Migrate(db))

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		base:  t.TempDir(),
		store: storage.NewDocRepo(db),
		files: record.NewFiles(""),
	}
	f.scanner = NewScanner(f.store, f.files, fingerprint.NewAddresser(nil), envelope.NewBuilder("tester"), extractor.DefaultRegistry())
	f.addDir("t-p", record.KindProject, "Project", 0)
	f.addDir("t-s", record.KindStep, "Project/001_Step", 1, "t-p")
	f.nav = hierarchy.NewNavigationContext(f.base).Descend("t-p", "Project")
	return f
}

func (f *fixture) abs(rel string) string {
	return filepath.Join(f.base, filepath.FromSlash(rel))
}

func (f *fixture) addDir(id string, kind record.Kind, rel string, child int, stack ...string) *record.Record {
	f.t.Helper()
	doc := &record.Record{ID: id, Type: record.TypeFor(kind), Name: filepath.Base(rel), Tags: []string{}}
	doc.AppendBranch(record.Branch{Stack: stack, Child: child, Path: rel, Op: record.OpCreate})
	saved, err := f.store.SaveDoc(f.ctx, doc)
	require.NoError(f.t, err)
	require.NoError(f.t, os.MkdirAll(f.abs(rel), 0755))
	require.NoError(f.t, f.files.WriteMarker(f.abs(rel), saved))
	return saved
}

func (f *fixture) write(rel, content string) {
	f.t.Helper()
	require.NoError(f.t, os.MkdirAll(filepath.Dir(f.abs(rel)), 0755))
	require.NoError(f.t, os.WriteFile(f.abs(rel), []byte(content), 0644))
}

func (f *fixture) scan(mode Mode) *report.Report {
	f.t.Helper()
	rep, err := f.scanner.Scan(f.ctx, f.nav, mode)
	require.NoError(f.t, err)
	return rep
}

func (f *fixture) docByHash(content string) *record.Record {
	f.t.Helper()
	rows, err := f.store.GetView(f.ctx, storage.ViewContentHash, fingerprint.HashBytes([]byte(content)))
	require.NoError(f.t, err)
	require.Len(f.t, rows, 1)
	doc, err := f.store.GetDoc(f.ctx, rows[0].ID)
	require.NoError(f.t, err)
	return doc
}

func TestScan_ConsistentTree(t *testing.T) {
	f := newFixture(t)
	rep := f.scan(ModePlain)

	require.Empty(t, rep.Faults)
	require.Equal(t, 2, rep.Outcomes()[report.OutcomeConsistent])
}

func TestScan_NewFileRegistersOneRecord(t *testing.T) {
	f := newFixture(t)
	f.write("Project/001_Step/sample.csv", sampleCSV)

	rep := f.scan(ModePlain)
	require.Equal(t, 0, rep.Count(report.SeverityError))
	require.Equal(t, 1, rep.Outcomes()[report.OutcomeRegistered])

	doc := f.docByHash(sampleCSV)
	require.Equal(t, fingerprint.HashBytes([]byte(sampleCSV)), doc.ContentHash)
	require.Equal(t, []string{"measurement", "csv"}, doc.Type)
	require.Equal(t, "sample.csv", doc.Name)
	cur, _ := doc.Current()
	require.Equal(t, []string{"t-p", "t-s"}, cur.Stack)
	require.Equal(t, "Project/001_Step/sample.csv", cur.Path)
	require.Equal(t, record.OpCreate, cur.Op)
	require.Equal(t, "Project/001_Step/sample_csv_eln.svg", doc.Image)
	require.FileExists(t, f.abs("Project/001_Step/sample_csv_eln.svg"))

	again := f.scan(ModePlain)
	require.Empty(t, again.Faults)
	require.Equal(t, 0, again.Outcomes()[report.OutcomeRegistered])
	f.docByHash(sampleCSV)
}

func TestScan_RenamedDirectory(t *testing.T) {
	f := newFixture(t)
	f.addDir("t-old", record.KindStep, "Project/005_OldName", 5, "t-p")
	f.write("Project/005_OldName/data.csv", sampleCSV)
	f.scan(ModePlain)

	require.NoError(t, os.Rename(f.abs("Project/005_OldName"), f.abs("Project/005_NewName")))

	rep := f.scan(ModePlain)
	require.Equal(t, 0, rep.Count(report.SeverityError), rep.String())
	require.Equal(t, 1, rep.Count(report.SeverityWarning), rep.String())
	require.Equal(t, 0, rep.Outcomes()[report.OutcomeRetired])

	marker, err := f.files.ReadMarker(f.abs("Project/005_NewName"))
	require.NoError(t, err)
	require.Equal(t, "t-old", marker.ID)
	require.Equal(t, "Project/005_OldName", marker.Path())

	doc, err := f.store.GetDoc(f.ctx, "t-old")
	require.NoError(t, err)
	require.Len(t, doc.Branch, 1)
	require.Equal(t, "Project/005_OldName", doc.Path())

	leaf := f.docByHash(sampleCSV)
	require.True(t, leaf.Active())
	require.Len(t, leaf.Branch, 1)
}

func TestScan_StaleMarkerPathRewritten(t *testing.T) {
	f := newFixture(t)
	stale, err := f.files.ReadMarker(f.abs("Project/001_Step"))
	require.NoError(t, err)
	stale.Branch[0].Path = "Project/000_Elsewhere"
	require.NoError(t, f.files.WriteMarker(f.abs("Project/001_Step"), stale))

	rep := f.scan(ModePlain)
	require.Equal(t, 0, rep.Count(report.SeverityError))
	require.Equal(t, 1, rep.CountKind(report.KindRepaired))

	marker, err := f.files.ReadMarker(f.abs("Project/001_Step"))
	require.NoError(t, err)
	require.Equal(t, "Project/001_Step", marker.Path())
}

func TestScan_IdentityMismatchNotRepaired(t *testing.T) {
	f := newFixture(t)
	foreign := &record.Record{ID: "t-x", Type: record.TypeFor(record.KindTask), Name: "x"}
	foreign.AppendBranch(record.Branch{Stack: []string{"t-p", "t-s"}, Path: "Project/001_Step", Op: record.OpCreate})
	require.NoError(t, f.files.WriteMarker(f.abs("Project/001_Step"), foreign))

	rep := f.scan(ModePlain)
	require.Equal(t, 1, rep.CountKind(report.KindIdentityMismatch))
	require.Equal(t, 1, rep.Count(report.SeverityError))

	marker, err := f.files.ReadMarker(f.abs("Project/001_Step"))
	require.NoError(t, err)
	require.Equal(t, "t-x", marker.ID, "identity mismatches are never repaired")
}

func TestScan_EditedFileIsIntegrityFault(t *testing.T) {
	f := newFixture(t)
	f.write("Project/001_Step/sample.csv", sampleCSV)
	f.scan(ModePlain)
	before := f.docByHash(sampleCSV)

	f.write("Project/001_Step/sample.csv", sampleCSV+"3,1.0\n")
	rep := f.scan(ModePlain)

	require.Equal(t, 1, rep.CountKind(report.KindIntegrityFault))
	require.Equal(t, 1, rep.Count(report.SeverityError))
	after, err := f.store.GetDoc(f.ctx, before.ID)
	require.NoError(t, err)
	require.Equal(t, before.Rev, after.Rev)
	require.Equal(t, before.ContentHash, after.ContentHash)
}

func TestScan_CorruptMarkerIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.addDir("t-b", record.KindStep, "Project/002_Broken", 2, "t-p")
	require.NoError(t, os.WriteFile(filepath.Join(f.abs("Project/002_Broken"), f.files.MarkerName()), []byte("{oops"), 0644))
	f.write("Project/002_Broken/inside.csv", "1,2\n")
	f.write("Project/zz_after.csv", "3,4\n")

	rep := f.scan(ModePlain)
	require.Equal(t, 1, rep.CountKind(report.KindMarkerCorrupt))
	require.Equal(t, 2, rep.Outcomes()[report.OutcomeRegistered])

	inside := f.docByHash("1,2\n")
	cur, _ := inside.Current()
	require.Equal(t, []string{"t-p", "t-b"}, cur.Stack)
}

func TestScan_RemovedFileIsRetired(t *testing.T) {
	f := newFixture(t)
	f.write("Project/001_Step/sample.csv", sampleCSV)
	f.scan(ModePlain)
	require.NoError(t, os.Remove(f.abs("Project/001_Step/sample.csv")))

	rep := f.scan(ModePlain)
	require.Equal(t, 1, rep.Outcomes()[report.OutcomeRetired])
	require.Equal(t, 1, rep.CountKind(report.KindMissingPath))

	rows, err := f.store.GetView(f.ctx, storage.ViewContentHash, fingerprint.HashBytes([]byte(sampleCSV)))
	require.NoError(t, err)
	require.Empty(t, rows)

	all, err := f.store.GetView(f.ctx, storage.ViewAll, "")
	require.NoError(t, err)
	for _, row := range all {
		if row.Value.Path == "Project/001_Step/sample.csv" {
			doc, err := f.store.GetDoc(f.ctx, row.ID)
			require.NoError(t, err)
			require.Len(t, doc.Branch, 2, "history is kept")
			require.False(t, doc.Active())
		}
	}
}

func TestScan_MovedFileKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.write("Project/001_Step/sample.csv", sampleCSV)
	f.scan(ModePlain)
	doc := f.docByHash(sampleCSV)

	require.NoError(t, os.Rename(f.abs("Project/001_Step/sample.csv"), f.abs("Project/moved.csv")))
	rep := f.scan(ModePlain)
	require.Equal(t, 1, rep.Outcomes()[report.OutcomeMoved])
	require.Equal(t, 0, rep.Outcomes()[report.OutcomeRetired])
	require.Equal(t, 0, rep.Outcomes()[report.OutcomeRegistered])

	moved, err := f.store.GetDoc(f.ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "Project/moved.csv", moved.Path())
	cur, _ := moved.Current()
	require.Equal(t, []string{"t-p"}, cur.Stack)
	require.Equal(t, record.OpUpdate, cur.Op)
}

func TestScan_DuplicateContent(t *testing.T) {
	f := newFixture(t)
	f.write("Project/001_Step/sample.csv", sampleCSV)
	f.scan(ModePlain)
	f.write("Project/copy.csv", sampleCSV)

	rep := f.scan(ModePlain)
	require.Equal(t, 1, rep.CountKind(report.KindDuplicateContent))
	require.Equal(t, 0, rep.Outcomes()[report.OutcomeRegistered])
	f.docByHash(sampleCSV)
}

func TestScan_UntrackedDirectory(t *testing.T) {
	f := newFixture(t)
	f.write("Project/misc/notes.csv", "5,6\n")

	rep := f.scan(ModePlain)
	require.Equal(t, 1, rep.CountKind(report.KindUntrackedDirectory))
	doc := f.docByHash("5,6\n")
	cur, _ := doc.Current()
	require.Equal(t, []string{"t-p"}, cur.Stack)
}

func TestScan_RelinkFromMarker(t *testing.T) {
	f := newFixture(t)
	// Retire the step by removing its directory, then restore it.
	require.NoError(t, os.Rename(f.abs("Project/001_Step"), filepath.Join(f.base, "stash")))
	f.scan(ModePlain)
	doc, err := f.store.GetDoc(f.ctx, "t-s")
	require.NoError(t, err)
	require.False(t, doc.Active())

	require.NoError(t, os.Rename(filepath.Join(f.base, "stash"), f.abs("Project/001_Step")))
	rep := f.scan(ModePlain)
	require.Equal(t, 1, rep.Outcomes()[report.OutcomeRelinked])
	require.Equal(t, 0, rep.Count(report.SeverityError))

	doc, err = f.store.GetDoc(f.ctx, "t-s")
	require.NoError(t, err)
	require.True(t, doc.Active())
	require.Len(t, doc.Branch, 3)
	cur, _ := doc.Current()
	require.Equal(t, []string{"t-p"}, cur.Stack)
	require.Equal(t, 1, cur.Child)
}

func TestScan_RelinkReportsTakenOrdinal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Rename(f.abs("Project/001_Step"), filepath.Join(f.base, "stash")))
	f.scan(ModePlain)
	f.addDir("t-n", record.KindStep, "Project/001_Other", 1, "t-p")

	require.NoError(t, os.Rename(filepath.Join(f.base, "stash"), f.abs("Project/001_Step")))
	rep := f.scan(ModePlain)
	require.Equal(t, 1, rep.Outcomes()[report.OutcomeRelinked])
	require.Equal(t, 1, rep.CountKind(report.KindSiblingConflict), rep.String())
	require.Equal(t, 0, rep.Count(report.SeverityError), rep.String())
}

func TestScan_ProduceAndCompareSnapshots(t *testing.T) {
	f := newFixture(t)
	f.write("Project/001_Step/sample.csv", sampleCSV)
	f.scan(ModePlain)

	produced := f.scan(ModeProduce)
	require.Empty(t, produced.Faults)
	require.FileExists(t, f.abs("Project/data_eln.json"))
	require.FileExists(t, f.abs("Project/001_Step/data_eln.json"))
	require.FileExists(t, f.abs("Project/001_Step/sample_csv_eln.json"))

	clean := f.scan(ModeCompare)
	require.Equal(t, 0, clean.CountKind(report.KindSnapshotMismatch), clean.String())

	doc, err := f.store.GetDoc(f.ctx, "t-s")
	require.NoError(t, err)
	doc.Comment = "edited in the database"
	_, err = f.store.UpdateDoc(f.ctx, doc)
	require.NoError(t, err)

	drift := f.scan(ModeCompare)
	require.Equal(t, 1, drift.CountKind(report.KindSnapshotMismatch))
}

func TestScan_ProduceSnapshotsRegisteredAndMovedFiles(t *testing.T) {
	f := newFixture(t)
	f.write("Project/001_Step/sample.csv", sampleCSV)

	produced := f.scan(ModeProduce)
	require.Equal(t, 1, produced.Outcomes()[report.OutcomeRegistered])
	require.Empty(t, produced.Faults)
	require.FileExists(t, f.abs("Project/001_Step/sample_csv_eln.json"))

	clean := f.scan(ModeCompare)
	require.Equal(t, 0, clean.CountKind(report.KindSnapshotMismatch), clean.String())

	require.NoError(t, os.Rename(f.abs("Project/001_Step/sample.csv"), f.abs("Project/moved.csv")))
	moved := f.scan(ModeProduce)
	require.Equal(t, 1, moved.Outcomes()[report.OutcomeMoved])
	require.FileExists(t, f.abs("Project/moved_csv_eln.json"))

	after := f.scan(ModeCompare)
	require.Equal(t, 0, after.CountKind(report.KindSnapshotMismatch), after.String())
}

func TestFaultFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind report.Kind
		wantSev  report.Severity
	}{
		{name: "corrupt marker", err: record.ErrMarkerCorrupt, wantKind: report.KindMarkerCorrupt, wantSev: report.SeverityError},
		{name: "directory", err: fingerprint.ErrNotSupported, wantKind: report.KindNotSupported, wantSev: report.SeverityWarning},
		{name: "local file changed", err: fmt.Errorf("%w: a.csv was 5 bytes, read 9", fingerprint.ErrFileChanged), wantKind: report.KindIntegrityFault, wantSev: report.SeverityWarning},
		{name: "remote size mismatch", err: &fingerprint.IntegrityError{Source: "https://x/a.csv", Expected: 5, Actual: 3}, wantKind: report.KindTransportError, wantSev: report.SeverityError},
		{name: "store", err: errors.New("database is locked"), wantKind: report.KindStoreFailure, wantSev: report.SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := faultFor(tt.err, "P/a.csv", "m-1")
			if f.Kind != tt.wantKind || f.Severity != tt.wantSev {
				t.Errorf("faultFor() = (%v, %v), want (%v, %v)", f.Kind, f.Severity, tt.wantKind, tt.wantSev)
			}
		})
	}
}

func TestScan_RequiresOpenProject(t *testing.T) {
	f := newFixture(t)
	_, err := f.scanner.Scan(f.ctx, hierarchy.NewNavigationContext(f.base), ModePlain)
	require.ErrorIs(t, err, ErrNoRoot)

	_, err = f.scanner.Scan(f.ctx, f.nav, Mode("backup"))
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestScan_StoreFailureIsIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	base := t.TempDir()
	files := record.NewFiles("")
	project := &record.Record{ID: "t-p", Type: record.TypeFor(record.KindProject), Name: "Project"}
	project.AppendBranch(record.Branch{Path: "Project", Op: record.OpCreate})
	require.NoError(t, os.MkdirAll(filepath.Join(base, "Project"), 0755))
	require.NoError(t, files.WriteMarker(filepath.Join(base, "Project"), project))
	require.NoError(t, os.WriteFile(filepath.Join(base, "Project", "a.csv"), []byte("1,1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "Project", "b.csv"), []byte("2,2\n"), 0644))

	store := mocks.NewMockDocStore(ctrl)
	store.EXPECT().GetView(gomock.Any(), storage.ViewPaths, "t-p").Return([]storage.ViewRow{{
		ID:    "t-p",
		Key:   "t-p",
		Value: storage.ViewValue{Path: "Project", Type: project.Type, Stack: []string{}, Op: "create"},
	}}, nil)
	store.EXPECT().GetView(gomock.Any(), storage.ViewContentHash, fingerprint.HashBytes([]byte("1,1\n"))).
		Return(nil, errors.New("database connection reset"))
	store.EXPECT().GetView(gomock.Any(), storage.ViewContentHash, fingerprint.HashBytes([]byte("2,2\n"))).
		Return(nil, nil)
	store.EXPECT().SaveDoc(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, doc *record.Record) (*record.Record, error) {
			require.Equal(t, "Project/b.csv", doc.Path())
			require.Equal(t, []string{"t-p"}, doc.Branch[0].Stack)
			return doc, nil
		})

	scanner := NewScanner(store, files, fingerprint.NewAddresser(nil), envelope.NewBuilder("tester"), extractor.DefaultRegistry())
	nav := hierarchy.NewNavigationContext(base).Descend("t-p", "Project")
	rep, err := scanner.Scan(context.Background(), nav, ModePlain)
	require.NoError(t, err)

	require.Equal(t, 1, rep.CountKind(report.KindStoreFailure))
	require.Equal(t, 1, rep.Outcomes()[report.OutcomeRegistered])
	require.Equal(t, 1, rep.Outcomes()[report.OutcomeConsistent])
}
