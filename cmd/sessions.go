package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kernelbridge/kernelbridge/internal/infrastructure/sqlite"
	"github.com/kernelbridge/kernelbridge/internal/sessions"
	"github.com/kernelbridge/kernelbridge/internal/sessions/domain"
)

var sessionsAll bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List persisted kernel sessions",
	Long: `List kernel sessions from the session store, newest first. By default
only live sessions (starting, connected) are shown; --all includes
stopped and failed ones.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := sqlite.NewDB(cfg.Sessions.DBPath)
		if err != nil {
			return fmt.Errorf("opening session store: %w", err)
		}
		svc := sessions.NewService(db.SessionRepository())
		defer func() { _ = db.Close() }()

		ctx := cmd.Context()
		var list []*domain.Session
		if sessionsAll {
			list, err = svc.List(ctx, domain.ListFilter{})
		} else {
			var starting, connected []*domain.Session
			starting, err = svc.List(ctx, domain.ListFilter{State: domain.SessionStateStarting})
			if err == nil {
				connected, err = svc.List(ctx, domain.ListFilter{State: domain.SessionStateConnected})
				list = append(connected, starting...)
			}
		}
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}

		return renderSessions(cmd.OutOrStdout(), list)
	},
}

func init() {
	sessionsCmd.Flags().BoolVarP(&sessionsAll, "all", "a", false,
		"include stopped and failed sessions")
	rootCmd.AddCommand(sessionsCmd)
}

// renderSessions prints sessions as a table.
func renderSessions(w io.Writer, list []*domain.Session) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "no sessions")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KERNEL ID\tNAME\tSTATE\tPROVISIONER\tCLIENT\tCREATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.KernelID(), s.Name(), s.State(),
			s.ProvisionerKind(), s.ClientKind(),
			s.CreatedAt().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
