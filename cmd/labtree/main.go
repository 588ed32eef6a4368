package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"labtree/internal/app"
	"labtree/internal/config"
	"labtree/internal/hierarchy"
	"labtree/internal/report"
)

// Set via ldflags at build time
var version = "dev"

// globals holds the persistent flags shared by every command.
type globals struct {
	at      []string
	jsonOut bool
}

func main() {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "labtree",
		Short:         "Keep a laboratory notebook tree and its database in sync",
		Long:          "labtree creates projects, steps and tasks as directories with marker files, registers data files and reconciles the tree with the document database.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&g.at, "at", nil, "Ids from the project down to the working record, comma separated")
	rootCmd.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "Print JSON instead of text")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tree", Title: "Tree Commands:"},
		&cobra.Group{ID: "records", Title: "Record Commands:"},
	)

	for _, c := range []*cobra.Command{scanCmd(g), checkCmd(g), cleanCmd(g), historyCmd(g)} {
		c.GroupID = "tree"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{addCmd(g), showCmd(g), lsCmd(g), fingerprintsCmd(g), hashCmd(g)} {
		c.GroupID = "records"
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// open loads the configuration and wires the notebook. The caller closes
// the returned App.
func open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(cfg.NewLogger())
	return app.Open(ctx, cfg)
}

// withApp runs fn with an opened App and the navigation context of --at.
func withApp(cmd *cobra.Command, g *globals, fn func(ctx context.Context, a *app.App, nav hierarchy.NavigationContext) error) error {
	ctx := cmd.Context()
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()
	nav, err := a.Notebook.Navigate(ctx, g.at...)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", strings.Join(g.at, "/"), err)
	}
	return fn(ctx, a, nav)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport writes rep and turns error-tier faults into a non-zero exit.
func printReport(w io.Writer, g *globals, rep *report.Report) error {
	if g.jsonOut {
		if err := printJSON(w, rep); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, rep.String())
	}
	if n := rep.Count(report.SeverityError); n > 0 {
		return fmt.Errorf("%d errors found", n)
	}
	return nil
}
