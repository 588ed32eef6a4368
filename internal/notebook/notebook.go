// Package notebook is the application layer of the lab notebook: it creates
// hierarchy records with their directories, navigates the hierarchy by id and
// runs scans and checks.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"labtree/internal/check"
	"labtree/internal/contextutil"
	"labtree/internal/envelope"
	"labtree/internal/extractor"
	"labtree/internal/hierarchy"
	"labtree/internal/metrics"
	"labtree/internal/reconcile"
	"labtree/internal/record"
	"labtree/internal/report"
	"labtree/internal/storage"
)

// ScanStore persists summaries of finished scans and checks.
type ScanStore interface {
	Record(ctx context.Context, scan storage.Scan) (storage.Scan, error)
	ListRecent(ctx context.Context, rootID string, limit int) ([]storage.Scan, error)
}

// Options configures a Notebook.
type Options struct {
	// BasePath is the root of the on-disk tree.
	BasePath   string
	Files      record.Files
	Builder    *envelope.Builder
	Hasher     reconcile.Hasher
	Extractors *extractor.Registry
}

// Notebook ties the document store to the directory tree below BasePath.
type Notebook struct {
	store   storage.DocStore
	scans   ScanStore
	base    string
	files   record.Files
	builder *envelope.Builder
	hasher  reconcile.Hasher
	scanner *reconcile.Scanner
	checker *check.Checker

	mu      sync.Mutex
	running map[string]bool
}

// New creates a Notebook. scans may be nil, in which case runs are not recorded.
func New(store storage.DocStore, scans ScanStore, opts Options) *Notebook {
	return &Notebook{
		store:   store,
		scans:   scans,
		base:    opts.BasePath,
		files:   opts.Files,
		builder: opts.Builder,
		hasher:  opts.Hasher,
		scanner: reconcile.NewScanner(store, opts.Files, opts.Hasher, opts.Builder, opts.Extractors),
		checker: check.NewChecker(store, opts.BasePath),
		running: make(map[string]bool),
	}
}

// Scan reconciles the directory of nav. Only one scan per project runs at a
// time; a concurrent request fails with ErrBusy.
func (n *Notebook) Scan(ctx context.Context, nav hierarchy.NavigationContext, mode reconcile.Mode) (*report.Report, error) {
	root := nav.Root()
	if root == "" {
		return nil, reconcile.ErrNoRoot
	}
	mode, err := reconcile.ParseMode(string(mode))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if !n.acquire(root) {
		metrics.Busy.Inc()
		return nil, fmt.Errorf("%w: %s", ErrBusy, root)
	}
	defer n.release(root)

	start := time.Now()
	rep, err := n.scanner.Scan(ctx, nav, mode)
	if err != nil {
		return rep, WrapError(err, "scan failed")
	}
	metrics.Observe("scan", string(mode), rep, time.Since(start).Seconds())
	n.recordRun(ctx, root, string(mode), rep)
	return rep, nil
}

// Check audits the whole database.
func (n *Notebook) Check(ctx context.Context) (*report.Report, error) {
	start := time.Now()
	rep, err := n.checker.Check(ctx)
	if err != nil {
		return rep, WrapError(err, "check failed")
	}
	metrics.Observe("check", "", rep, time.Since(start).Seconds())
	n.recordRun(ctx, "", "check", rep)
	return rep, nil
}

// History lists the most recent runs for a project; an empty rootID selects
// database checks.
func (n *Notebook) History(ctx context.Context, rootID string, limit int) ([]storage.Scan, error) {
	if n.scans == nil {
		return nil, nil
	}
	return n.scans.ListRecent(ctx, rootID, limit)
}

func (n *Notebook) acquire(root string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running[root] {
		return false
	}
	n.running[root] = true
	return true
}

func (n *Notebook) release(root string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.running, root)
}

func (n *Notebook) recordRun(ctx context.Context, root, mode string, rep *report.Report) {
	if n.scans == nil {
		return
	}
	_, err := n.scans.Record(ctx, storage.Scan{
		RootID:   root,
		Mode:     mode,
		Paths:    len(rep.Results),
		Errors:   rep.Count(report.SeverityError),
		Warnings: rep.Count(report.SeverityWarning),
	})
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to record run", "root", root, "mode", mode, "error", err)
	}
}

// Doc returns a record by id.
func (n *Notebook) Doc(ctx context.Context, id string) (*record.Record, error) {
	doc, err := n.store.GetDoc(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: record %s", ErrNotFound, id)
	}
	return doc, err
}

// Fingerprints lists the content hashes of all active file-backed records.
func (n *Notebook) Fingerprints(ctx context.Context) ([]storage.ViewRow, error) {
	return n.store.GetView(ctx, storage.ViewContentHash, "")
}

// Children lists the records placed directly below the innermost record of nav.
func (n *Notebook) Children(ctx context.Context, nav hierarchy.NavigationContext) ([]storage.ViewRow, error) {
	return n.store.GetView(ctx, storage.ViewHierarchy, storage.StackKey(nav.Stack))
}

// Hash fingerprints a local file or a remote resource.
func (n *Notebook) Hash(ctx context.Context, location string) (string, error) {
	return n.hasher.Hash(ctx, location)
}
