package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"labtree/internal/app"
	"labtree/internal/hierarchy"
	"labtree/internal/reconcile"
	"labtree/internal/record"
	"labtree/internal/storage"
)

func scanCmd(g *globals) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Reconcile the directory of --at with the database",
		Long:  "Walk the directory of the working record and compare every path with its marker file and database record. produce also writes snapshot sidecars, compare verifies them.",
		Example: "  labtree scan --at p-1a2b\n" +
			"  labtree scan --at p-1a2b,t-3c4d --mode compare",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, nav hierarchy.NavigationContext) error {
				rep, err := a.Notebook.Scan(ctx, nav, reconcile.Mode(mode))
				if err != nil {
					return err
				}
				return printReport(cmd.OutOrStdout(), g, rep)
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(reconcile.ModePlain), "Scan mode: plain, produce or compare")
	return cmd
}

func checkCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Audit the whole database",
		Long:  "Verify parent references, sibling ordinals, hierarchy depth and the presence of every file-backed record's path.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, _ hierarchy.NavigationContext) error {
				rep, err := a.Notebook.Check(ctx)
				if err != nil {
					return err
				}
				return printReport(cmd.OutOrStdout(), g, rep)
			})
		},
	}
}

func cleanCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove snapshot sidecars and previews below --at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, nav hierarchy.NavigationContext) error {
				n, err := a.Notebook.CleanTree(ctx, nav)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d files removed\n", n)
				return nil
			})
		},
	}
}

func historyCmd(g *globals) *cobra.Command {
	var root string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent scans and checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, _ hierarchy.NavigationContext) error {
				scans, err := a.Notebook.History(ctx, root, limit)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), scans)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tWHEN\tROOT\tMODE\tPATHS\tERRORS\tWARNINGS")
				for _, s := range scans {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
						s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.RootID, s.Mode, s.Paths, s.Errors, s.Warnings)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Only scans of this project id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")
	return cmd
}

func addCmd(g *globals) *cobra.Command {
	var name, comment string
	var sets []string
	cmd := &cobra.Command{
		Use:   "add <kind>",
		Short: "Create a record below --at",
		Long: "Create a project, step or task (with directory and marker file) or a measurement, sample, procedure or custom record. " +
			"A leaf name that is a URL or a file below the notebook is fingerprinted.",
		Example: "  labtree add project --name \"Solar cells\"\n" +
			"  labtree add step --at p-1a2b --name \"clean substrate\"\n" +
			"  labtree add measurement --at p-1a2b --name SolarCells/iv.csv --set childNum=3",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := map[string]any{"name": name}
			if comment != "" {
				raw["comment"] = comment
			}
			for _, kv := range sets {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("--set expects key=value, got %q", kv)
				}
				raw[k] = v
			}
			return withApp(cmd, g, func(ctx context.Context, a *app.App, nav hierarchy.NavigationContext) error {
				doc, err := a.Notebook.Add(ctx, nav, record.Kind(args[0]), raw)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), doc)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", doc.ID, doc.Path())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Record name, or file path or URL for data records")
	cmd.Flags().StringVar(&comment, "comment", "", "Comment; #tags and key:value: pairs are extracted")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Additional field as key=value (repeatable)")
	return cmd
}

func showCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, _ hierarchy.NavigationContext) error {
				doc, err := a.Notebook.Doc(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), doc)
			})
		},
	}
}

func lsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the records directly below --at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, nav hierarchy.NavigationContext) error {
				rows, err := a.Notebook.Children(ctx, nav)
				if err != nil {
					return err
				}
				return printRows(cmd, g, rows, "ID\tKIND\tNAME\tPATH", func(r storage.ViewRow) string {
					return fmt.Sprintf("%s\t%s\t%s\t%s", r.ID, record.KindOf(r.Value.Type), r.Value.Name, r.Value.Path)
				})
			})
		},
	}
}

func fingerprintsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprints",
		Short: "List the content fingerprint of every file-backed record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, _ hierarchy.NavigationContext) error {
				rows, err := a.Notebook.Fingerprints(ctx)
				if err != nil {
					return err
				}
				return printRows(cmd, g, rows, "FINGERPRINT\tID\tPATH", func(r storage.ViewRow) string {
					return fmt.Sprintf("%s\t%s\t%s", r.Key, r.ID, r.Value.Path)
				})
			})
		},
	}
}

func hashCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "hash <path-or-url>...",
		Short:   "Print content fingerprints",
		Example: "  labtree hash data.csv\n  labtree hash s3://bucket/run1.csv",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, _ hierarchy.NavigationContext) error {
				for _, loc := range args {
					sum, err := a.Notebook.Hash(ctx, loc)
					if err != nil {
						return fmt.Errorf("%s: %w", loc, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, loc)
				}
				return nil
			})
		},
	}
}

func printRows(cmd *cobra.Command, g *globals, rows []storage.ViewRow, header string, line func(storage.ViewRow) string) error {
	if g.jsonOut {
		if rows == nil {
			rows = []storage.ViewRow{}
		}
		return printJSON(cmd.OutOrStdout(), rows)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, r := range rows {
		fmt.Fprintln(tw, line(r))
	}
	return tw.Flush()
}
