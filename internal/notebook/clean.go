package notebook

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"labtree/internal/contextutil"
	"labtree/internal/hierarchy"
)

// CleanTree removes the snapshot sidecars and generated previews below the
// directory of nav. Marker files are kept. It returns the number of files removed.
func (n *Notebook) CleanTree(ctx context.Context, nav hierarchy.NavigationContext) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)
	marker := n.files.MarkerName()
	removed := 0

	err := filepath.WalkDir(nav.AbsDir(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || d.Name() == marker || !n.files.IsInternal(d.Name()) {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
		removed++
		logger.DebugContext(ctx, "sidecar removed", "path", p)
		return nil
	})
	if err != nil {
		return removed, WrapError(err, "clean failed")
	}
	logger.InfoContext(ctx, "tree cleaned", "dir", nav.Dir, "removed", removed)
	return removed, nil
}
