// Package reconcile walks a hierarchy subtree on disk and reconciles it with
// the document store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"labtree/internal/contextutil"
	"labtree/internal/envelope"
	"labtree/internal/extractor"
	"labtree/internal/fingerprint"
	"labtree/internal/hierarchy"
	"labtree/internal/record"
	"labtree/internal/report"
	"labtree/internal/storage"
)

// Mode selects the optional snapshot behaviour of a scan.
type Mode string

const (
	// ModePlain only reconciles.
	ModePlain Mode = "plain"
	// ModeProduce also writes a snapshot sidecar of every visited record.
	ModeProduce Mode = "produce"
	// ModeCompare compares the snapshot sidecars with the database and does
	// not write to the filesystem.
	ModeCompare Mode = "compare"
)

var (
	// ErrNoRoot is returned when no project is open in the navigation context.
	ErrNoRoot = errors.New("no project selected")
	// ErrUnknownMode is returned for unsupported scan modes.
	ErrUnknownMode = errors.New("unknown scan mode")
)

// ParseMode converts a mode name; the empty string selects ModePlain.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePlain:
		return ModePlain, nil
	case ModeProduce, ModeCompare:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Hasher computes content fingerprints.
type Hasher interface {
	Hash(ctx context.Context, location string) (string, error)
}

// Scanner reconciles directory trees with the document store.
type Scanner struct {
	store      storage.DocStore
	files      record.Files
	hasher     Hasher
	builder    *envelope.Builder
	extractors *extractor.Registry
}

// NewScanner creates a Scanner.
func NewScanner(
	store storage.DocStore,
	files record.Files,
	hasher Hasher,
	builder *envelope.Builder,
	extractors *extractor.Registry,
) *Scanner {
	if extractors == nil {
		extractors = extractor.NewRegistry()
	}
	return &Scanner{
		store:      store,
		files:      files,
		hasher:     hasher,
		builder:    builder,
		extractors: extractors,
	}
}

type dirInfo struct {
	id    string
	stack []string
}

// scan holds the state of one traversal.
type scan struct {
	*Scanner
	ctx    context.Context
	logger *slog.Logger
	nav    hierarchy.NavigationContext
	mode   Mode
	report *report.Report

	// index maps database paths below the scanned directory to view rows.
	index   map[string]storage.ViewRow
	visited map[string]bool
	// alias maps a renamed directory on disk to its database path.
	alias map[string]string
	// dirs holds the identity of every hierarchy directory seen, by disk path.
	dirs map[string]dirInfo
	// failed lists directories that could not be read.
	failed []string
}

// Scan reconciles the directory of nav, which must have a project open.
// Faults found on individual paths are collected in the report; an error is
// only returned when the scan cannot start or the context is cancelled.
func (s *Scanner) Scan(ctx context.Context, nav hierarchy.NavigationContext, mode Mode) (*report.Report, error) {
	if nav.Root() == "" {
		return nil, ErrNoRoot
	}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	root := nav.AbsDir()
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan root %s: %w", nav.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", nav.Dir)
	}

	rows, err := s.store.GetView(ctx, storage.ViewPaths, nav.Root())
	if err != nil {
		return nil, fmt.Errorf("failed to load paths of %s: %w", nav.Root(), err)
	}

	logger := contextutil.LoggerFromContext(ctx).With("root", nav.Root(), "mode", string(mode))
	sc := &scan{
		Scanner: s,
		ctx:     ctx,
		logger:  logger,
		nav:     nav,
		mode:    mode,
		report:  report.New(nav.Root()),
		index:   make(map[string]storage.ViewRow),
		visited: make(map[string]bool),
		alias:   make(map[string]string),
		dirs:    make(map[string]dirInfo),
	}
	for _, row := range rows {
		p := row.Value.Path
		if fingerprint.IsRemote(p) || !hierarchy.IsWithin(p, nav.Dir) {
			continue
		}
		sc.index[p] = row
	}

	logger.InfoContext(ctx, "scan started", "dir", nav.Dir, "indexed", len(sc.index))
	if err := filepath.WalkDir(root, sc.visit); err != nil {
		return sc.report, err
	}
	sc.retireUnvisited()

	logger.InfoContext(ctx, "scan finished",
		"paths", len(sc.report.Results),
		"errors", sc.report.Count(report.SeverityError),
		"warnings", sc.report.Count(report.SeverityWarning),
	)
	return sc.report, nil
}

func (sc *scan) visit(absPath string, d fs.DirEntry, walkErr error) error {
	if err := sc.ctx.Err(); err != nil {
		return err
	}
	rel, err := filepath.Rel(sc.nav.Base, absPath)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)

	if walkErr != nil {
		sc.add(report.Result{Path: rel, Outcome: report.OutcomeFailed, Fault: faultFor(walkErr, rel, "")})
		if d == nil || d.IsDir() {
			sc.failed = append(sc.failed, sc.resolve(rel))
			if d != nil {
				return filepath.SkipDir
			}
		}
		return nil
	}

	name := d.Name()
	if d.IsDir() {
		if rel != sc.nav.Dir && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		sc.visitDir(rel, absPath)
		return nil
	}
	if strings.HasPrefix(name, ".") || sc.files.IsInternal(name) {
		return nil
	}
	if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
		return nil
	}
	sc.visitFile(rel, absPath)
	return nil
}

// resolve maps a path on disk to its database path, following renamed
// ancestor directories.
func (sc *scan) resolve(rel string) string {
	for p := rel; p != ""; p = hierarchy.Parent(p) {
		if dbPath, ok := sc.alias[p]; ok {
			return dbPath + rel[len(p):]
		}
	}
	return rel
}

// inheritedStack returns the ancestry of an entry at rel: the stack of the
// nearest enclosing hierarchy directory plus that directory's id. Outside of
// any known directory the navigation stack is used.
func (sc *scan) inheritedStack(rel string) []string {
	for p := hierarchy.Parent(rel); ; p = hierarchy.Parent(p) {
		if info, ok := sc.dirs[p]; ok {
			stack := make([]string, len(info.stack), len(info.stack)+1)
			copy(stack, info.stack)
			return append(stack, info.id)
		}
		if p == "" {
			break
		}
	}
	return append([]string{}, sc.nav.Stack...)
}

// writes reports whether the scan may modify the filesystem.
func (sc *scan) writes() bool {
	return sc.mode != ModeCompare
}

func (sc *scan) add(res report.Result) {
	sc.report.Add(res)

	logger := sc.logger.With("path", res.Path, "doc_id", res.DocID, "outcome", string(res.Outcome))
	if res.Fault == nil {
		if res.Outcome == report.OutcomeConsistent {
			logger.DebugContext(sc.ctx, "path consistent")
		} else {
			logger.InfoContext(sc.ctx, "path reconciled")
		}
		return
	}
	logFault(sc.ctx, logger, *res.Fault)
}

func (sc *scan) addFault(f *report.Fault) {
	sc.report.AddFault(*f)
	logFault(sc.ctx, sc.logger.With("path", f.Path, "doc_id", f.DocID), *f)
}

func logFault(ctx context.Context, logger *slog.Logger, f report.Fault) {
	switch f.Severity {
	case report.SeverityError:
		logger.ErrorContext(ctx, f.Message, "kind", string(f.Kind))
	case report.SeverityWarning:
		logger.WarnContext(ctx, f.Message, "kind", string(f.Kind))
	default:
		logger.InfoContext(ctx, f.Message, "kind", string(f.Kind))
	}
}

func (sc *scan) fail(rel, id string, err error) {
	sc.add(report.Result{Path: rel, DocID: id, Outcome: report.OutcomeFailed, Fault: faultFor(err, rel, id)})
}

func newFault(kind report.Kind, sev report.Severity, rel, id, format string, args ...any) *report.Fault {
	return &report.Fault{Kind: kind, Severity: sev, Path: rel, DocID: id, Message: fmt.Sprintf(format, args...)}
}

// faultFor classifies an error raised while handling one path.
func faultFor(err error, rel, id string) *report.Fault {
	switch {
	case errors.Is(err, record.ErrMarkerCorrupt):
		return newFault(report.KindMarkerCorrupt, report.SeverityError, rel, id, "%v", err)
	case errors.Is(err, fingerprint.ErrNotSupported):
		return newFault(report.KindNotSupported, report.SeverityWarning, rel, id, "%v", err)
	case errors.Is(err, fingerprint.ErrFileChanged):
		return newFault(report.KindIntegrityFault, report.SeverityWarning, rel, id, "%v, scan again once it is written", err)
	case errors.Is(err, fingerprint.ErrTransport):
		return newFault(report.KindTransportError, report.SeverityError, rel, id, "%v", err)
	}
	return newFault(report.KindStoreFailure, report.SeverityError, rel, id, "%v", err)
}

// retireUnvisited appends a delete placement to every indexed path that was
// not found on disk.
func (sc *scan) retireUnvisited() {
	var missing []string
	for p := range sc.index {
		if !sc.visited[p] {
			missing = append(missing, p)
		}
	}
	sort.Strings(missing)

	for _, p := range missing {
		row := sc.index[p]
		if sc.insideFailed(p) {
			sc.add(report.Result{Path: p, DocID: row.ID, Outcome: report.OutcomeSkipped})
			continue
		}
		doc, err := sc.store.GetDoc(sc.ctx, row.ID)
		if err != nil {
			sc.fail(p, row.ID, err)
			continue
		}
		b, _ := doc.Current()
		doc.AppendBranch(record.Branch{Stack: b.Stack, Child: b.Child, Path: p, Op: record.OpDelete})
		if _, err := sc.store.UpdateDoc(sc.ctx, doc); err != nil {
			sc.fail(p, row.ID, err)
			continue
		}
		sc.add(report.Result{
			Path:    p,
			DocID:   row.ID,
			Outcome: report.OutcomeRetired,
			Fault:   newFault(report.KindMissingPath, report.SeverityWarning, p, row.ID, "path not found on disk, placement retired"),
		})
	}
}

func (sc *scan) insideFailed(p string) bool {
	for _, dir := range sc.failed {
		if hierarchy.IsWithin(p, dir) {
			return true
		}
	}
	return false
}
