// Package cli implements the estudo command-line client.
//
// Each command is a thin layer over internal/client: it resolves the server
// and the stored session, calls the API and prints a human readable result.
// Failures surface as a single "Error: ..." line on stderr and exit code 1.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/estudogame/internal/client"
)

const appName = "estudo"

// App carries the process environment of one CLI invocation. Zero fields
// fall back to the real terminal, environment and credential file.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	Version string

	// Store persists credentials. Nil selects the FileStore under the user
	// config dir.
	Store client.CredentialStore

	// ConfigPath overrides the default config file location.
	ConfigPath    string
	Getenv        func(string) string
	Now           func() time.Time
	ClientOptions []client.Option

	logger *slog.Logger
	stdin  *bufio.Reader
	cfg    Config
	api    *client.Client
	sess   *client.Session
}

// Run executes args and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	a.defaults()

	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(a.In)
	cmd.SetOut(a.Out)
	cmd.SetErr(a.Err)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.Err, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *App) defaults() {
	if a.In == nil {
		a.In = os.Stdin
	}
	if a.Out == nil {
		a.Out = os.Stdout
	}
	if a.Err == nil {
		a.Err = os.Stderr
	}
	if a.Getenv == nil {
		a.Getenv = os.Getenv
	}
	if a.Now == nil {
		a.Now = time.Now
	}
	if a.Version == "" {
		a.Version = "dev"
	}
	a.logger = slog.New(slog.NewTextHandler(a.Err, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func (a *App) rootCmd() *cobra.Command {
	var (
		server     string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Study tracker and challenge client for estudogame",
		Long: `estudo talks to an estudogame server.

Log study sessions to earn points (10 per hour), create and join
challenges with friends and follow their rankings live.

The server is taken from --server, then $ESTUDO_SERVER, then the
"server" key of ~/.config/estudo/config.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(server, configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&server, "server", "s", "", "API server URL")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML)")

	cmd.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.profileCmd(),
		a.challengesCmd(),
		a.sessionsCmd(),
		a.healthCmd(),
		a.versionCmd(),
	)
	return cmd
}

// setup resolves configuration, credentials and the API client.
func (a *App) setup(serverFlag, configFlag string) error {
	path := configFlag
	if path == "" {
		path = a.ConfigPath
	}
	if path == "" {
		if p, err := DefaultConfigPath(); err == nil {
			path = p
		}
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	a.cfg = cfg.resolveServer(serverFlag, a.Getenv(ServerEnv))

	store := a.Store
	if store == nil {
		p, err := client.DefaultCredentialsPath()
		if err != nil {
			return err
		}
		store = &client.FileStore{Path: p}
	}
	if a.sess, err = client.NewSession(store); err != nil {
		return err
	}

	opts := append([]client.Option{
		client.WithHTTPClient(&http.Client{Timeout: a.cfg.Timeout}),
	}, a.ClientOptions...)
	a.api = client.New(a.cfg.Server, opts...)
	return nil
}

var errNotLoggedIn = errors.New("not logged in: run `estudo login` first")

// requireLogin fails early when no token is stored.
func (a *App) requireLogin() error {
	if !a.sess.IsAuthenticated() {
		return errNotLoggedIn
	}
	return nil
}

// apiErr turns API failures into CLI messages. A rejected token is dropped
// so the next command asks for a fresh login.
func (a *App) apiErr(err error) error {
	if err == nil {
		return nil
	}
	if client.IsUnauthorized(err) && a.sess.IsAuthenticated() {
		if serr := a.sess.SignOut(); serr != nil {
			a.logger.Warn("clearing credentials", "error", serr)
		}
		return errors.New("session expired: run `estudo login` again")
	}
	return err
}

// refresh re-reads the account after a write. Failure is only logged.
func (a *App) refresh(ctx context.Context) *client.User {
	u, err := a.api.RefreshUser(ctx, a.sess)
	if err != nil {
		a.logger.Warn("refreshing profile", "error", err)
		return nil
	}
	return u
}

func parseID(arg, resource string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", resource, arg)
	}
	return id, nil
}

func (a *App) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.api.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "%s: %s (%s)\n", h.Status, h.Message, a.cfg.Server)
			return nil
		},
	}
}

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.Out, "%s version %s\n", appName, a.Version)
			return nil
		},
	}
}
