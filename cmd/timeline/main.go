// Command timeline runs action timelines: an HTTP panel and API, an MCP
// server, a terminal runner and file tooling over a shared SQLite store.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Run graphs of timed actions and decision points",
		Long: `timeline executes timelines: directed graphs of timed actions joined by
decision points. Timelines run automatically on a ticker or step by step in
manual sessions, and every transition is recorded in an append-only event log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "settings file (default ~/.timeline/settings.yaml)")
	pf.StringVar(&g.dbPath, "db", "", "database path, overrides the settings file")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newServeCmd(g),
		newMCPCmd(g),
		newRunCmd(g),
		newImportCmd(g),
		newExportCmd(g),
		newListCmd(g),
		newDeleteCmd(g),
		newValidateCmd(),
		newRenderCmd(g),
		newQueryCmd(g),
		newStatsCmd(g),
		newScheduleCmd(g),
		newInstallCmd(g),
		newVersionCmd(),
	)
	return cmd
}
