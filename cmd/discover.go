package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/discovery-console/internal/discovery"
	"github.com/sells-group/discovery-console/internal/model"
	"github.com/sells-group/discovery-console/internal/store"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run and inspect source tests for a user's discovery session",
}

var discoverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Test every selected source in order",
	Long:  "Resolves the user's active discovery session, optionally replaces its selection, and tests each selected source one after another. Interrupting cancels the sources that have not started.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("discover"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		user, _ := cmd.Flags().GetString("user")
		sources, _ := cmd.Flags().GetStringSlice("sources")

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return runDiscover(ctx, os.Stdout, st, user, sources)
	},
}

var discoverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest test status per selected source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		ctx := cmd.Context()
		user, _ := cmd.Flags().GetString("user")

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return showStatus(ctx, os.Stdout, st, user)
	},
}

func init() {
	discoverRunCmd.Flags().String("user", "", "user whose session to run")
	discoverRunCmd.Flags().StringSlice("sources", nil, "replace the selection with these catalog entry ids (in order)")
	_ = discoverRunCmd.MarkFlagRequired("user")

	discoverStatusCmd.Flags().String("user", "", "user whose session to inspect")
	_ = discoverStatusCmd.MarkFlagRequired("user")

	discoverCmd.AddCommand(discoverRunCmd, discoverStatusCmd)
	rootCmd.AddCommand(discoverCmd)
}

func openWorkbench(ctx context.Context, st store.Store, user string) (*discovery.Workbench, error) {
	deps, err := workbenchDeps(cfg, st)
	if err != nil {
		return nil, err
	}
	return discovery.Open(ctx, deps, user)
}

func runDiscover(ctx context.Context, out io.Writer, st store.Store, user string, sources []string) error {
	wb, err := openWorkbench(ctx, st, user)
	if err != nil {
		return err
	}
	if len(sources) > 0 {
		if err := wb.Select(ctx, sources); err != nil {
			return err
		}
	}
	if len(wb.Selected()) == 0 {
		return eris.New("discover run: no sources selected (pass --sources)")
	}

	summary, err := wb.RunAll(ctx)
	if err != nil {
		return err
	}

	zap.L().Info("discovery batch complete",
		zap.String("session_id", wb.SessionID()),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("cancelled", summary.Cancelled),
	)

	formatStatus(out, wb.SessionID(), wb.Selected(), wb.Latest())
	_, _ = fmt.Fprintf(out, "\n%d attempted, %d succeeded, %d failed, %d cancelled\n",
		summary.Attempted, summary.Succeeded, summary.Failed, summary.Cancelled)
	return nil
}

// showStatus reads the user's active session and its results. It never
// creates a session.
func showStatus(ctx context.Context, out io.Writer, st store.Store, user string) error {
	sessions, err := st.ListSessions(ctx, user)
	if err != nil {
		return eris.Wrap(err, "discover status: list sessions")
	}
	res := discovery.Resolve(sessions, nil)
	if !res.Found() {
		_, _ = fmt.Fprintf(out, "No discovery session for %s\n", user)
		return nil
	}

	results, err := st.ListResults(ctx, res.SessionID)
	if err != nil {
		return eris.Wrap(err, "discover status: list results")
	}
	formatStatus(out, res.SessionID, res.SelectedSourceIDs, discovery.LatestPerSource(results))
	return nil
}

// formatStatus prints the latest result for each selected source, or for
// every tested source when nothing is selected.
func formatStatus(out io.Writer, sessionID string, selected []string, latest map[string]model.TestResult) {
	ids := selected
	if len(ids) == 0 {
		for id := range latest {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session %s\n", shortUUID(sessionID))
	_, _ = fmt.Fprintln(w, "SOURCE\tSTATUS\tRESULT\tCOMPLETED\tERROR")
	_, _ = fmt.Fprintln(w, "------\t------\t------\t---------\t-----")

	for _, id := range ids {
		res, ok := latest[id]
		if !ok {
			_, _ = fmt.Fprintf(w, "%s\t%s\t\t\t\n", id, "not tested")
			continue
		}
		completed := ""
		if res.CompletedAt != nil {
			completed = res.CompletedAt.Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			id,
			res.Status,
			shortUUID(res.ID),
			completed,
			truncate(res.ErrorMessage, 50),
		)
	}
	_ = w.Flush()
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

func shortUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
