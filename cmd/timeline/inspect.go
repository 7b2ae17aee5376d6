package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rendis/timeline/internal/config"
	"github.com/rendis/timeline/internal/diagram"
	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/expressions"
	"github.com/rendis/timeline/internal/exchange"
	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/internal/store"
)

// loadDetached restores a stored timeline into an engine that is not wired
// to the store, for read-only inspection.
func (a *app) loadDetached(ctx context.Context, id string) (*store.Timeline, *engine.Engine, error) {
	tl, err := a.store.GetTimeline(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	e := engine.New(engine.WithLogger(a.logger), engine.WithTimelineID(tl.ID))
	if err := e.FromJSON(tl.Snapshot); err != nil {
		return nil, nil, err
	}
	return tl, e, nil
}

func newRenderCmd(g *globalFlags) *cobra.Command {
	var (
		format string
		output string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "render [timeline-id]",
		Short: "Draw a timeline as Mermaid, ASCII, SVG or PNG",
		Long: `Render draws a stored timeline, or with --file a timeline file, with the
status of every node. ASCII output uses mermaid-ascii when "timeline install"
has downloaded it and a built-in renderer otherwise.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := diagram.ParseFormat(format)
			if err != nil {
				return err
			}

			var model *diagram.DiagramModel
			switch {
			case file != "":
				doc, err := exchange.LoadFile(file)
				if err != nil {
					return err
				}
				model = diagram.Build(doc.Name, doc.Timeline)
			case len(args) == 1:
				a, err := g.open(ctx, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.close()
				tl, e, err := a.loadDetached(ctx, args[0])
				if err != nil {
					return err
				}
				model = diagram.Build(tl.Name, e.ToJSON())
			default:
				return fmt.Errorf("render needs a timeline id or --file")
			}

			var out []byte
			if f == diagram.FormatASCII {
				out = []byte(diagram.RenderASCIIAuto(ctx, model, filepath.Join(config.Dir(), "bin")))
			} else if out, err = diagram.Render(ctx, model, f); err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			return os.WriteFile(output, out, 0o644)
		},
	}
	cmd.Flags().StringVar(&format, "format", "mermaid", "mermaid, ascii, svg or png")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&file, "file", "", "render a timeline file instead of a stored timeline")
	return cmd
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	var engineName string
	cmd := &cobra.Command{
		Use:   "query <timeline-id> <expression>",
		Short: "Filter nodes with CEL or expr, or run jq over the snapshot",
		Long: `Query evaluates expression against a stored timeline. With --engine cel or
expr the expression is a predicate over each node, which is bound as "node"
next to the timeline status as "timeline". With --engine jq the expression
runs over the whole snapshot.`,
		Example: `  timeline query tl-1 'node.kind == "action" && node.duration > 600000'
  timeline query tl-1 --engine jq '[.actions[] | select(.status == "completed") | .id]'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			_, e, err := a.loadDetached(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := runQuery(ctx, e, engineName, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&engineName, "engine", "cel", "cel, expr or jq")
	return cmd
}

func runQuery(ctx context.Context, e *engine.Engine, engineName, expression string) (any, error) {
	if engineName == "jq" {
		return expressions.Query(ctx, expressions.NewGoJQEngine(), expression, e.ToJSON())
	}
	reg, err := expressions.NewRegistry()
	if err != nil {
		return nil, err
	}
	eng, err := reg.Get(engineName)
	if err != nil {
		return nil, err
	}
	timeline, err := expressions.ToData(e.Status())
	if err != nil {
		return nil, err
	}
	nodes, err := expressions.Filter(ctx, eng, expression, e.GetAllNodes(), timeline)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Map())
	}
	return out, nil
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	var (
		sessionID string
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "stats <timeline-id>",
		Short: "Compare planned and actual durations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			_, e, err := a.loadDetached(ctx, args[0])
			if err != nil {
				return err
			}
			stats := e.GetSessionStats()
			if sessionID != "" {
				stats = e.SessionBreakdown(sessionID)
			}
			sessions, err := a.store.ListSessions(ctx, store.SessionFilter{TimelineID: args[0]})
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"stats": stats, "sessions": sessions})
			}
			return printStats(cmd.OutOrStdout(), stats, sessions)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "only runs recorded in this manual session")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	return cmd
}

func printStats(w io.Writer, stats engine.SessionStats, sessions []*store.Session) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tEXPECTED\tACTUAL\tVARIANCE\tRUNS")
	for _, s := range stats.Actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.Name,
			graph.FormatDuration(s.ExpectedMs), graph.FormatDuration(s.ActualMs), signedDuration(s.VarianceMs), s.Runs)
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t%s\t%s\t\n", graph.FormatDuration(stats.TotalExpectedMs),
		graph.FormatDuration(stats.TotalActualMs), signedDuration(stats.TotalActualMs-stats.TotalExpectedMs))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(sessions) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tACTIONS\tEXPECTED\tACTUAL")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.ActionCount, graph.FormatDuration(s.TotalExpectedMs), graph.FormatDuration(s.TotalActualMs))
	}
	return tw.Flush()
}

func signedDuration(ms int64) string {
	if ms < 0 {
		return "-" + graph.FormatDuration(-ms)
	}
	return "+" + graph.FormatDuration(ms)
}
