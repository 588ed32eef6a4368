package notebook

import (
	"context"
	"path"
	"slices"

	"labtree/internal/hierarchy"
)

// Top returns a navigation context with nothing opened.
func (n *Notebook) Top() hierarchy.NavigationContext {
	return hierarchy.NewNavigationContext(n.base)
}

// Navigate opens the given ids in order, starting at the top.
func (n *Notebook) Navigate(ctx context.Context, ids ...string) (hierarchy.NavigationContext, error) {
	nav := n.Top()
	for _, id := range ids {
		next, err := n.DescendByID(ctx, nav, id)
		if err != nil {
			return nav, err
		}
		nav = next
	}
	return nav, nil
}

// DescendByID opens the hierarchy record id, which must be placed directly
// below the innermost record of nav. The directory name is taken from the
// record's current path.
func (n *Notebook) DescendByID(ctx context.Context, nav hierarchy.NavigationContext, id string) (hierarchy.NavigationContext, error) {
	doc, err := n.Doc(ctx, id)
	if err != nil {
		return nav, err
	}
	if !doc.Kind().IsHierarchy() {
		return nav, invalid("id", "%s is a %s, not a project, step or task", id, doc.Kind())
	}
	if !doc.Active() {
		return nav, invalid("id", "%s has been retired", id)
	}
	b, _ := doc.Current()
	if !slices.Equal(b.Stack, nav.Stack) || hierarchy.Parent(b.Path) != nav.Dir {
		return nav, invalid("id", "%s is not a child of %q", id, nav.Dir)
	}
	return nav.Descend(id, path.Base(b.Path)), nil
}

// Ascend closes the innermost record of nav.
func (n *Notebook) Ascend(nav hierarchy.NavigationContext) (hierarchy.NavigationContext, error) {
	return nav.Ascend()
}
