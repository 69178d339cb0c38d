package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/estudogame/internal/client"
)

func (a *App) challengesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "challenges",
		Aliases: []string{"challenge", "ch"},
		Short:   "Browse, create and join study challenges",
	}
	cmd.AddCommand(
		a.challengesListCmd(),
		a.challengesCreateCmd(),
		a.challengesShowCmd(),
		a.challengesJoinCmd(),
		a.challengesRankingCmd(),
		a.challengesWatchCmd(),
	)
	return cmd
}

func (a *App) challengesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active challenges, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			list, err := a.api.Challenges(cmd.Context(), a.sess)
			if err != nil {
				return a.apiErr(err)
			}
			if len(list) == 0 {
				fmt.Fprintln(a.Out, "No active challenges. Create one with `estudo challenges create`.")
				return nil
			}

			tw := newTable(a.Out)
			fmt.Fprintln(tw, "ID\tNAME\tSUBJECT\tPARTICIPANTS\tENDS\tCREATOR")
			for i := range list {
				c := &list[i]
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
					c.ID, c.Name, c.Subject, c.ParticipantsCount, endDate(c), orDash(c.CreatorName))
			}
			return tw.Flush()
		},
	}
}

func (a *App) challengesCreateCmd() *cobra.Command {
	var req client.CreateChallengeRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a challenge; you join it automatically",
		Example: `  estudo challenges create --name "Maratona de Cálculo" --subject Matemática --end-date 2026-12-01
  estudo challenges create --name "ENEM" --subject Geral --end-date 2026-11-08T23:59:00-03:00`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			c, err := a.api.CreateChallenge(cmd.Context(), a.sess, req)
			if err != nil {
				return a.apiErr(err)
			}
			fmt.Fprintln(a.Out, "Challenge created.")
			printChallenge(a.Out, c)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Challenge name")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "Subject studied")
	cmd.Flags().StringVar(&req.Description, "description", "", "Optional description")
	cmd.Flags().StringVar(&req.EndDate, "end-date", "", "Optional end date, YYYY-MM-DD or RFC 3339")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func (a *App) challengesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a challenge and its ranking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "challenge")
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}

			c, err := a.api.Challenge(cmd.Context(), a.sess, id)
			if err != nil {
				return a.apiErr(err)
			}
			ranking, err := a.api.Ranking(cmd.Context(), a.sess, id)
			if err != nil {
				return a.apiErr(err)
			}

			printChallenge(a.Out, c)
			fmt.Fprintln(a.Out)
			printRanking(a.Out, ranking)
			return nil
		},
	}
}

func (a *App) challengesJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join ID",
		Short: "Join a challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "challenge")
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}
			if _, err := a.api.JoinChallenge(cmd.Context(), a.sess, id); err != nil {
				return a.apiErr(err)
			}
			fmt.Fprintf(a.Out, "Joined challenge #%d. Sessions you log from now on count towards it.\n", id)
			a.refresh(cmd.Context())
			return nil
		},
	}
}

func (a *App) challengesRankingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ranking ID",
		Short: "Show the ranking of a challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "challenge")
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}
			ranking, err := a.api.Ranking(cmd.Context(), a.sess, id)
			if err != nil {
				return a.apiErr(err)
			}
			printRanking(a.Out, ranking)
			return nil
		},
	}
}

func (a *App) challengesWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Follow the ranking of a challenge live until Ctrl-C",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "challenge")
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = a.api.WatchRanking(ctx, a.sess, id, func(s client.RankingSnapshot) error {
				fmt.Fprintf(a.Out, "--- challenge #%d at %s ---\n", s.ChallengeID, s.At.Local().Format("15:04:05"))
				printRanking(a.Out, s.Ranking)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return a.apiErr(err)
		},
	}
}
