package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/estudogame/internal/client"
)

// prompt reads one line from stdin when a flag was left empty.
func (a *App) prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	if a.stdin == nil {
		a.stdin = bufio.NewReader(a.In)
	}
	fmt.Fprintf(a.Err, "%s: ", label)
	line, err := a.stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return line, nil
}

func (a *App) registerCmd() *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if name, err = a.prompt("Name", name); err != nil {
				return err
			}
			if email, err = a.prompt("Email", email); err != nil {
				return err
			}
			if password, err = a.prompt("Password", password); err != nil {
				return err
			}

			res, err := a.api.Register(cmd.Context(), a.sess, email, password, name)
			if err != nil {
				return a.apiErr(err)
			}
			fmt.Fprintf(a.Out, "Account created. Welcome, %s!\n", res.User.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when empty)")
	return cmd
}

func (a *App) loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if email, err = a.prompt("Email", email); err != nil {
				return err
			}
			if password, err = a.prompt("Password", password); err != nil {
				return err
			}

			res, err := a.api.Login(cmd.Context(), a.sess, email, password)
			if err != nil {
				return a.apiErr(err)
			}
			fmt.Fprintf(a.Out, "Logged in as %s (%s), %d points.\n", res.User.Name, res.User.Email, res.User.TotalPoints)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when empty)")
	return cmd
}

func (a *App) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sess.SignOut(); err != nil {
				return err
			}
			fmt.Fprintln(a.Out, "Logged out.")
			return nil
		},
	}
}

func (a *App) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			u, err := a.api.RefreshUser(cmd.Context(), a.sess)
			if err != nil {
				return a.apiErr(err)
			}
			printUser(a.Out, u)
			return nil
		},
	}
}

// ===== PROFILE =====

func (a *App) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your profile",
	}
	cmd.AddCommand(a.profileShowCmd(), a.profileUpdateCmd())
	return cmd
}

func (a *App) profileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show your profile and study statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			p, err := a.api.Profile(cmd.Context(), a.sess)
			if err != nil {
				return a.apiErr(err)
			}
			if err := a.sess.SetUser(p.User); err != nil {
				a.logger.Warn("saving profile", "error", err)
			}

			printUser(a.Out, &p.User)
			fmt.Fprintln(a.Out)
			tw := newTable(a.Out)
			fmt.Fprintf(tw, "Sessions:\t%d\n", p.Stats.TotalSessions)
			fmt.Fprintf(tw, "Study time:\t%s\n", formatStudyTime(p.Stats.TotalStudyTimeSeconds))
			fmt.Fprintf(tw, "Points earned:\t%d\n", p.Stats.TotalPointsEarned)
			fmt.Fprintf(tw, "Challenges:\t%d\n", p.Stats.TotalChallenges)
			return tw.Flush()
		},
	}
}

func (a *App) profileUpdateCmd() *cobra.Command {
	var name, avatar string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change your name or avatar URL",
		Long: `Change your name or avatar URL. Flags that are not given keep their
current value; --avatar "" removes the avatar.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			nameSet, avatarSet := cmd.Flags().Changed("name"), cmd.Flags().Changed("avatar")
			if !nameSet && !avatarSet {
				return errors.New("nothing to update: pass --name and/or --avatar")
			}

			current, err := a.api.Verify(cmd.Context(), a.sess)
			if err != nil {
				return a.apiErr(err)
			}
			if !nameSet {
				name = current.Name
			}
			if !avatarSet {
				avatar = current.AvatarURL
			}

			u, err := a.api.UpdateProfile(cmd.Context(), a.sess, name, avatar)
			if err != nil {
				return a.apiErr(err)
			}
			if err := a.sess.SetUser(*u); err != nil {
				a.logger.Warn("saving profile", "error", err)
			}
			fmt.Fprintln(a.Out, "Profile updated.")
			printUser(a.Out, u)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New display name")
	cmd.Flags().StringVar(&avatar, "avatar", "", "New avatar URL (empty to remove)")
	return cmd
}

func formatStudyTime(seconds int64) string {
	if seconds == 0 {
		return "0s"
	}
	return fmt.Sprintf("%s (%dh)", client.FormatDuration(seconds), seconds/3600)
}
