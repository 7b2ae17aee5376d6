package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/exchange"
	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/internal/validation"
)

func newImportCmd(g *globalFlags) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "import <file|dir>",
		Short: "Import timeline files into the store",
		Long: `Import reads JSON or YAML timeline files, validates them and stores each as
a new timeline. Given a directory, every file matching --pattern is imported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			docs, loadErr := loadDocuments(a, args[0], pattern)
			if len(docs) == 0 && loadErr != nil {
				return loadErr
			}

			mgr := a.newManager()
			defer func() { _ = mgr.Close(ctx) }()
			for _, doc := range docs {
				snap := doc.Timeline
				tl, err := mgr.Create(ctx, doc.Name, doc.Description, &snap)
				if err != nil {
					return fmt.Errorf("import %s: %w", doc.Path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", tl.ID, tl.Name, doc.Path)
			}
			return loadErr
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "**/*", "glob pattern used when importing a directory")
	return cmd
}

func loadDocuments(a *app, path, pattern string) ([]*exchange.Document, error) {
	v, err := validation.NewTimelineValidator()
	if err != nil {
		return nil, err
	}
	im := exchange.NewImporter(v, a.logger)

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return im.LoadGlob(path, pattern)
	}
	doc, err := im.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return []*exchange.Document{doc}, nil
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var (
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "export <timeline-id>",
		Short: "Write a stored timeline to a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := exportFormat(format, output)
			if err != nil {
				return err
			}

			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			tl, err := a.store.GetTimeline(ctx, args[0])
			if err != nil {
				return err
			}
			snap, err := engine.ParseSnapshot(tl.Snapshot)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			doc := exchange.Document{Name: tl.Name, Description: tl.Description, ExportedAt: &now, Timeline: snap}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return exchange.Export(w, doc, f)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default from the output extension, else json)")
	return cmd
}

func exportFormat(format, output string) (exchange.Format, error) {
	if format != "" {
		return exchange.ParseFormat(format)
	}
	if output != "" && output != "-" {
		if f, err := exchange.FormatFromPath(output); err == nil {
			return f, nil
		}
	}
	return exchange.FormatJSON, nil
}

func newListCmd(g *globalFlags) *cobra.Command {
	var (
		name    string
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored timelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			tls, err := a.store.ListTimelines(ctx, store.TimelineFilter{Name: name, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), tls)
			}
			if len(tls) == 0 {
				cmd.Println("No timelines found")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tUPDATED")
			for _, tl := range tls {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", tl.ID, tl.Name, tl.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "only timelines whose name contains this text")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of timelines")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	return cmd
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <timeline-id>",
		Short: "Delete a timeline with its events, sessions and schedules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			mgr := a.newManager()
			defer func() { _ = mgr.Close(ctx) }()
			if err := mgr.Delete(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check timeline files for structural and graph problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := validation.NewTimelineValidator()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			im := exchange.NewImporter(v, logger)
			failed := 0
			for _, path := range args {
				doc, err := im.LoadFile(path)
				if err != nil {
					failed++
					cmd.Printf("%s: %v\n", path, err)
					continue
				}
				cmd.Printf("%s: ok (%d nodes)\n", path, len(doc.Timeline.Nodes()))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(args))
			}
			return nil
		},
	}
}
