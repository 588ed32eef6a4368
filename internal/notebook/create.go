package notebook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"labtree/internal/contextutil"
	"labtree/internal/fingerprint"
	"labtree/internal/hierarchy"
	"labtree/internal/record"
	"labtree/internal/storage"
)

// ordinalKey lets callers choose the sibling ordinal of a new step or task.
const ordinalKey = "childNum"

// AddHierarchy creates a project, step or task below the innermost record of
// nav: the record is stored with a create placement, its directory is created
// and the marker file written.
func (n *Notebook) AddHierarchy(ctx context.Context, nav hierarchy.NavigationContext, kind record.Kind, raw map[string]any) (*record.Record, error) {
	logger := contextutil.LoggerFromContext(ctx)
	if !kind.IsHierarchy() {
		return nil, invalid("type", "%q is not a hierarchy kind", kind)
	}
	if len(nav.Stack) != kind.Depth() {
		return nil, invalid("type", "a %s is created at depth %d, current depth is %d", kind, kind.Depth(), len(nav.Stack))
	}

	data := make(map[string]any, len(raw))
	for k, v := range raw {
		data[k] = v
	}
	requested, hasOrdinal := data[ordinalKey]
	delete(data, ordinalKey)
	delete(data, "type")

	doc, err := n.builder.Normalize(data, record.TypeFor(kind), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if doc.Name == "" {
		return nil, invalid("name", "cannot be empty")
	}

	ordinal := 0
	if kind != record.KindProject {
		taken, err := n.siblingOrdinals(ctx, nav.Stack)
		if err != nil {
			return nil, err
		}
		if hasOrdinal {
			if ordinal, err = hierarchy.ParseOrdinal(requested); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}
			if id, ok := taken[ordinal]; ok {
				return nil, invalid(ordinalKey, "ordinal %d is already used by %s", ordinal, id)
			}
		} else {
			ordinal = nextOrdinal(taken)
		}
	}

	dirName, err := hierarchy.ComposeName(doc.Name, kind, ordinal)
	switch {
	case errors.Is(err, hierarchy.ErrOrdinalOverflow):
		logger.WarnContext(ctx, "ordinal exceeds three digits, siblings will not sort", "name", dirName, "ordinal", ordinal)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if dirName == "" {
		return nil, invalid("name", "%q yields an empty directory name", doc.Name)
	}

	rel := path.Join(nav.Dir, dirName)
	abs := nav.Abs(rel)
	if _, err := os.Stat(abs); err == nil {
		return nil, invalid("name", "directory %s already exists", rel)
	}

	doc.AppendBranch(record.Branch{Stack: append([]string{}, nav.Stack...), Child: ordinal, Path: rel, Op: record.OpCreate})
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, WrapError(err, "failed to create directory")
	}
	saved, err := n.store.SaveDoc(ctx, doc)
	if err != nil {
		return nil, WrapError(err, "failed to save record")
	}
	if err := n.files.WriteMarker(abs, saved); err != nil {
		return saved, WrapError(err, "failed to write marker")
	}

	logger.InfoContext(ctx, "hierarchy record created", "doc_id", saved.ID, "kind", string(kind), "path", rel)
	return saved, nil
}

// siblingOrdinals maps the ordinals of the active steps and tasks placed
// below stack to their ids.
func (n *Notebook) siblingOrdinals(ctx context.Context, stack []string) (map[int]string, error) {
	rows, err := n.store.GetView(ctx, storage.ViewHierarchy, storage.StackKey(stack))
	if err != nil {
		return nil, WrapError(err, "failed to list siblings")
	}
	taken := make(map[int]string, len(rows))
	for _, row := range rows {
		if k := record.KindOf(row.Value.Type); k.IsHierarchy() && k != record.KindProject {
			taken[row.Value.Child] = row.ID
		}
	}
	return taken, nil
}

// nextOrdinal returns one past the highest ordinal in taken.
func nextOrdinal(taken map[int]string) int {
	next := 0
	for ord := range taken {
		if ord >= next {
			next = ord + 1
		}
	}
	return next
}

// AddLeaf creates a measurement, sample, procedure or custom record below the
// innermost record of nav. A name that is a URL or a file below the base path
// is fingerprinted and becomes the record's path.
func (n *Notebook) AddLeaf(ctx context.Context, nav hierarchy.NavigationContext, kind record.Kind, raw map[string]any) (*record.Record, error) {
	if kind == "" || kind.IsHierarchy() {
		return nil, invalid("type", "%q is not a leaf kind", kind)
	}
	if nav.Root() == "" {
		return nil, invalid("stack", "no project selected")
	}

	data := make(map[string]any, len(raw))
	for k, v := range raw {
		data[k] = v
	}
	name, _ := data["name"].(string)
	name = strings.TrimSpace(name)

	var location, sum string
	switch {
	case fingerprint.IsRemote(name):
		var err error
		if sum, err = n.hasher.Hash(ctx, name); err != nil {
			return nil, WrapError(err, "failed to fetch remote content")
		}
		location = name
		data["name"] = path.Base(name)
	case name != "":
		rel := path.Clean(filepath.ToSlash(name))
		if rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
			return nil, invalid("name", "%q is outside the notebook", name)
		}
		abs := filepath.Join(n.base, filepath.FromSlash(rel))
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			if sum, err = n.hasher.Hash(ctx, abs); err != nil {
				return nil, WrapError(err, "failed to fingerprint file")
			}
			location = rel
			data["name"] = path.Base(rel)
		}
	}

	doc, err := n.builder.Normalize(data, record.TypeFor(kind), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if doc.Kind() != kind {
		return nil, invalid("type", "type %v is not a %s", doc.Type, kind)
	}

	if sum != "" {
		rows, err := n.store.GetView(ctx, storage.ViewContentHash, sum)
		if err != nil {
			return nil, WrapError(err, "failed to look up fingerprint")
		}
		if len(rows) > 0 {
			return nil, invalid("name", "same content already recorded as %s", rows[0].ID)
		}
		doc.ContentHash = sum
	}

	doc.AppendBranch(record.Branch{Stack: append([]string{}, nav.Stack...), Child: record.LeafChild, Path: location, Op: record.OpCreate})
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	saved, err := n.store.SaveDoc(ctx, doc)
	if err != nil {
		return nil, WrapError(err, "failed to save record")
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "record created", "doc_id", saved.ID, "kind", string(saved.Kind()), "path", location)
	return saved, nil
}

// Add dispatches to AddHierarchy or AddLeaf by kind.
func (n *Notebook) Add(ctx context.Context, nav hierarchy.NavigationContext, kind record.Kind, raw map[string]any) (*record.Record, error) {
	if kind.IsHierarchy() {
		return n.AddHierarchy(ctx, nav, kind, raw)
	}
	return n.AddLeaf(ctx, nav, kind, raw)
}
