package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/timeline/internal/scheduler"
	"github.com/rendis/timeline/internal/store"
)

func newScheduleCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage cron schedules that start timelines",
		Long: `Schedules start a stored timeline on a cron expression. They are run by
"timeline serve" while scheduler_enabled is set.`,
	}
	cmd.AddCommand(
		newScheduleAddCmd(g),
		newScheduleListCmd(g),
		newScheduleToggleCmd(g, "enable", "Enable a schedule", true),
		newScheduleToggleCmd(g, "disable", "Disable a schedule", false),
		newScheduleRemoveCmd(g),
	)
	return cmd
}

func newScheduleAddCmd(g *globalFlags) *cobra.Command {
	var (
		nodeID string
		manual bool
	)
	cmd := &cobra.Command{
		Use:     "add <timeline-id> <cron>",
		Short:   "Add a schedule",
		Example: `  timeline schedule add tl-1 "30 6 * * 1-5"
  timeline schedule add tl-1 @daily --manual`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if nodeID == "" {
				_, e, err := a.loadDetached(ctx, args[0])
				if err != nil {
					return err
				}
				if nodeID = e.EntryNode(); nodeID == "" {
					return fmt.Errorf("timeline %s has no node to start at", args[0])
				}
			}
			sched, err := scheduler.NewScheduler(a.store, nil, a.logger).Add(ctx, args[0], nodeID, args[1], manual)
			if err != nil {
				return err
			}
			cmd.Printf("Added schedule %s, next run %s\n", sched.ID, sched.NextRunAt.Local().Format(time.DateTime))
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeID, "node", "", "node to start at (default: the first root)")
	cmd.Flags().BoolVar(&manual, "manual", false, "start a manual session instead of an automatic run")
	return cmd
}

func newScheduleListCmd(g *globalFlags) *cobra.Command {
	var (
		timelineID string
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			scheds, err := a.store.ListSchedules(ctx, store.ScheduleFilter{TimelineID: timelineID})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), scheds)
			}
			if len(scheds) == 0 {
				cmd.Println("No schedules found")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIMELINE\tCRON\tNODE\tMODE\tENABLED\tNEXT RUN\tLAST STATUS")
			for _, s := range scheds {
				mode := "auto"
				if s.Manual {
					mode = "manual"
				}
				next := "-"
				if s.NextRunAt != nil {
					next = s.NextRunAt.Local().Format(time.DateTime)
				}
				last := s.LastRunStatus
				if last == "" {
					last = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
					s.ID, s.TimelineID, s.CronExpression, s.StartNodeID, mode, s.Enabled, next, last)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&timelineID, "timeline", "", "only schedules of this timeline")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	return cmd
}

func newScheduleToggleCmd(g *globalFlags, use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <schedule-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if err := scheduler.NewScheduler(a.store, nil, a.logger).SetEnabled(ctx, args[0], enabled); err != nil {
				return err
			}
			cmd.Printf("Schedule %s %sd\n", args[0], use)
			return nil
		},
	}
}

func newScheduleRemoveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <schedule-id>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if err := scheduler.NewScheduler(a.store, nil, a.logger).Remove(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("Removed schedule %s\n", args[0])
			return nil
		},
	}
}
