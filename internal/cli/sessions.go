package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/estudogame/internal/client"
)

func (a *App) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "s"},
		Short:   "Log and manage study sessions",
	}
	cmd.AddCommand(
		a.sessionsListCmd(),
		a.sessionsLogCmd(),
		a.sessionsTimerCmd(),
		a.sessionsEditCmd(),
		a.sessionsDeleteCmd(),
		a.sessionsExportCmd(),
	)
	return cmd
}

func (a *App) sessionsListCmd() *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your study sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			res, err := a.api.Sessions(cmd.Context(), a.sess, page, limit)
			if err != nil {
				return a.apiErr(err)
			}
			if len(res.Sessions) == 0 {
				if res.Pagination.TotalSessions == 0 {
					fmt.Fprintln(a.Out, "No study sessions yet. Start one with `estudo sessions timer`.")
				} else {
					fmt.Fprintf(a.Out, "Page %d is empty (%d sessions in total).\n", res.Pagination.CurrentPage, res.Pagination.TotalSessions)
				}
				return nil
			}

			tw := newTable(a.Out)
			fmt.Fprintln(tw, "ID\tDATE\tDURATION\tSUBJECT\tPOINTS\tNOTES")
			for _, s := range res.Sessions {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
					s.ID, client.FormatDate(s.CreatedAt), client.FormatDuration(s.DurationSeconds),
					orDash(s.Subject), s.PointsEarned, orDash(s.Notes))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			p := res.Pagination
			fmt.Fprintf(a.Out, "\nPage %d of %d (%d sessions)", p.CurrentPage, p.TotalPages, p.TotalSessions)
			if p.HasNextPage {
				fmt.Fprintf(a.Out, ", next: --page %d", p.CurrentPage+1)
			}
			fmt.Fprintln(a.Out)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 10, "Sessions per page (max 100)")
	return cmd
}

func (a *App) sessionsLogCmd() *cobra.Command {
	var (
		hours, minutes, seconds int64
		subject, notes          string
	)

	cmd := &cobra.Command{
		Use:     "log",
		Short:   "Log a session you already studied",
		Example: `  estudo sessions log --hours 1 --minutes 30 --subject Física --notes "cinemática"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			if hours < 0 || minutes < 0 || seconds < 0 {
				return errors.New("duration parts must not be negative")
			}
			total := hours*3600 + minutes*60 + seconds
			if total <= 0 {
				return errors.New("duration must be greater than zero: pass --hours, --minutes or --seconds")
			}
			return a.logSession(cmd.Context(), total, subject, notes)
		},
	}

	cmd.Flags().Int64Var(&hours, "hours", 0, "Hours studied")
	cmd.Flags().Int64Var(&minutes, "minutes", 0, "Minutes studied")
	cmd.Flags().Int64Var(&seconds, "seconds", 0, "Seconds studied")
	cmd.Flags().StringVar(&subject, "subject", "", "Subject studied")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	return cmd
}

func (a *App) sessionsTimerCmd() *cobra.Command {
	var subject, notes string

	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Run a stopwatch and log it when you stop",
		Long: `Run a stopwatch on the terminal. Press Enter (or Ctrl-C) to stop it;
the elapsed time is then logged as a study session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}

			start := a.Now()
			fmt.Fprintln(a.Err, "Timer started. Press Enter to stop and save.")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			a.waitForStop(ctx, start)
			stop()

			elapsed := a.Now().Sub(start)
			fmt.Fprintf(a.Err, "\rStopped at %s\n", client.FormatClock(elapsed))

			total := int64(elapsed / time.Second)
			if total < 1 {
				return errors.New("timer stopped before any time was recorded")
			}
			// Ctrl-C only stops the clock; the session is still saved.
			return a.logSession(context.WithoutCancel(cmd.Context()), total, subject, notes)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Subject studied")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	return cmd
}

// waitForStop ticks the clock on stderr until a line arrives on stdin or
// ctx is done.
func (a *App) waitForStop(ctx context.Context, start time.Time) {
	if a.stdin == nil {
		a.stdin = bufio.NewReader(a.In)
	}
	in := a.stdin

	enter := make(chan struct{})
	go func() {
		_, _ = in.ReadString('\n')
		close(enter)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-enter:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(a.Err, "\r%s", client.FormatClock(a.Now().Sub(start)))
		}
	}
}

func (a *App) logSession(ctx context.Context, seconds int64, subject, notes string) error {
	s, err := a.api.LogSession(ctx, a.sess, client.LogSessionRequest{
		DurationSeconds: seconds,
		Subject:         subject,
		Notes:           notes,
	})
	if err != nil {
		return a.apiErr(err)
	}

	fmt.Fprintf(a.Out, "Session #%d logged: %s", s.ID, client.FormatDuration(s.DurationSeconds))
	if s.Subject != "" {
		fmt.Fprintf(a.Out, " of %s", s.Subject)
	}
	fmt.Fprintf(a.Out, ", +%d points.\n", s.PointsEarned)

	if u := a.refresh(ctx); u != nil {
		fmt.Fprintf(a.Out, "Total points: %d\n", u.TotalPoints)
	}
	return nil
}

func (a *App) sessionsEditCmd() *cobra.Command {
	var subject, notes string

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change the subject or notes of a session",
		Long: `Change the subject or notes of a session. Duration and points are
fixed once a session is logged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "session")
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}

			var req client.UpdateSessionRequest
			if cmd.Flags().Changed("subject") {
				req.Subject = &subject
			}
			if cmd.Flags().Changed("notes") {
				req.Notes = &notes
			}
			if req.Subject == nil && req.Notes == nil {
				return errors.New("nothing to update: pass --subject and/or --notes")
			}

			s, err := a.api.UpdateSession(cmd.Context(), a.sess, id, req)
			if err != nil {
				return a.apiErr(err)
			}
			fmt.Fprintf(a.Out, "Session #%d updated: %s, %s.\n", s.ID, orDash(s.Subject), orDash(s.Notes))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "New subject")
	cmd.Flags().StringVar(&notes, "notes", "", "New notes")
	return cmd
}

func (a *App) sessionsDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a session and take back its points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "session")
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}
			if !yes {
				answer, err := a.prompt(fmt.Sprintf("Delete session #%d and its points? [y/N]", id), "")
				if err != nil || !isYes(answer) {
					fmt.Fprintln(a.Out, "Cancelled.")
					return nil
				}
			}

			if err := a.api.DeleteSession(cmd.Context(), a.sess, id); err != nil {
				return a.apiErr(err)
			}
			fmt.Fprintf(a.Out, "Session #%d deleted.\n", id)
			if u := a.refresh(cmd.Context()); u != nil {
				fmt.Fprintf(a.Out, "Total points: %d\n", u.TotalPoints)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "s", "sim":
		return true
	}
	return false
}

func (a *App) sessionsExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download all your sessions as a spreadsheet",
		Long: `Download all your sessions as an .xlsx spreadsheet. Without --output
the file name suggested by the server is used; "-" writes to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}

			var buf bytes.Buffer
			name, err := a.api.ExportSessions(cmd.Context(), a.sess, &buf)
			if err != nil {
				return a.apiErr(err)
			}

			if output == "-" {
				_, err := a.Out.Write(buf.Bytes())
				return err
			}
			if output == "" {
				output = filepath.Base(name)
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			fmt.Fprintf(a.Out, "Exported to %s (%d bytes).\n", output, buf.Len())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file")
	return cmd
}
