package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/newsdesk/console/internal/auth"
	"github.com/newsdesk/console/internal/config"
	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/guard"
	"github.com/newsdesk/console/internal/observability"
	"github.com/newsdesk/console/internal/session"
	"github.com/newsdesk/console/internal/tokenstore"
)

var errNotSignedIn = errors.New("not signed in")

// app holds the global flags and the collaborators every command shares.
type app struct {
	out    io.Writer
	errOut io.Writer

	credentials string
	apiURL      string
	areasFile   string
	logLevel    string
	timeout     time.Duration
	password    string // From NEWSDESK_PASSWORD

	clock  domain.Clock
	logger *slog.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut, clock: domain.RealClock{}}

	cmd := &cobra.Command{
		Use:           "newsdeskctl",
		Short:         "Sign in to the newsdesk and check area access",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.applyConfig(cmd); err != nil {
				return err
			}
			a.logger = observability.InitLogger(observability.LogConfig{
				Level:       a.logLevel,
				Format:      "text",
				ServiceName: "newsdeskctl",
				Environment: "cli",
				Output:      a.errOut,
			})
			if a.credentials == "" {
				path, err := tokenstore.DefaultFilePath()
				if err != nil {
					return err
				}
				a.credentials = path
			}
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.credentials, "credentials", "", "Credentials file (env NEWSDESK_CREDENTIALS, default $XDG_CONFIG_HOME/newsdesk/credentials.json)")
	flags.StringVar(&a.apiURL, "api-url", "", "Backend API base URL (env NEWSDESK_API_URL)")
	flags.StringVar(&a.areasFile, "areas", "", "YAML area mapping (env NEWSDESK_AREAS_FILE, default admin, editor, reporter)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (env NEWSDESK_LOG_LEVEL)")
	flags.DurationVar(&a.timeout, "timeout", 0, "Login request timeout (env NEWSDESK_TIMEOUT)")

	cmd.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.openCmd(),
		a.areasCmd(),
	)
	return cmd
}

// applyConfig fills every flag the user did not set from NEWSDESK_*
// variables and defaults.
func (a *app) applyConfig(cmd *cobra.Command) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("api-url") {
		a.apiURL = cfg.APIURL
	}
	if !flags.Changed("timeout") {
		a.timeout = cfg.Timeout
	}
	if !flags.Changed("credentials") {
		a.credentials = cfg.Credentials
	}
	if !flags.Changed("areas") {
		a.areasFile = cfg.AreasFile
	}
	if !flags.Changed("log-level") {
		a.logLevel = cfg.LogLevel
	}
	a.password = cfg.Password
	return nil
}

// session builds a Session over the credentials file and restores it.
func (a *app) session(ctx context.Context) *session.Session {
	sess := session.New(session.Config{
		Store:   tokenstore.NewFileStore(a.credentials),
		Decoder: auth.NewDecoder(a.clock),
		Authenticator: auth.NewClient(auth.ClientConfig{
			BaseURL: a.apiURL,
			Timeout: a.timeout,
			Logger:  a.logger,
		}),
		Logger: a.logger,
	})
	sess.Init(ctx)
	return sess
}

func (a *app) areas() (guard.Areas, error) {
	if a.areasFile == "" {
		return guard.DefaultAreas(), nil
	}
	return guard.LoadAreas(a.areasFile)
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = a.password
			}
			if email == "" || password == "" {
				return errors.New("--email and --password (or NEWSDESK_PASSWORD) are required")
			}

			sess := a.session(cmd.Context())
			if !sess.Login(cmd.Context(), email, password) {
				return errors.New(sess.State().Err)
			}

			user := sess.State().User
			fmt.Fprintf(a.out, "Signed in as %s (%s).\n", user.Email, user.Role)
			if areas, err := a.areas(); err == nil {
				if area, ok := areas.ForRole(user.Role); ok {
					fmt.Fprintf(a.out, "Your area: %s (%s)\n", area.Name, area.Prefix)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (env NEWSDESK_PASSWORD)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess := a.session(cmd.Context())
			sess.Logout(cmd.Context())
			if msg := sess.State().Err; msg != "" {
				return errors.New(msg)
			}
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := a.session(cmd.Context()).State()
			if !st.Authenticated {
				return errNotSignedIn
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "user\t%s\n", st.User.UserID)
			fmt.Fprintf(tw, "email\t%s\n", st.User.Email)
			fmt.Fprintf(tw, "role\t%s\n", st.User.Role)
			fmt.Fprintf(tw, "expires\t%s\n", st.User.ExpiresAt.Local().Format(time.RFC1123))
			return tw.Flush()
		},
	}
}

func (a *app) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <area>",
		Short: "Enter an area the way the console does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			areas, err := a.areas()
			if err != nil {
				return err
			}
			area, ok := areas.ByName(args[0])
			if !ok {
				return fmt.Errorf("unknown area %q: %w", args[0], domain.ErrNotFound)
			}

			sess := a.session(cmd.Context())
			var redirected string
			g := guard.NewAreaGuard(guard.AreaGuardConfig{
				Area:    area,
				Session: sess,
				Navigator: guard.NavigatorFunc(func(path string) {
					redirected = path
				}),
				Notifier: guard.NotifierFunc(func(n guard.Notification) {
					fmt.Fprintf(a.errOut, "%s: %s\n", n.Level, n.Message)
				}),
				Logger: a.logger,
			})
			g.Mount()
			defer g.Unmount()

			if !g.Allow() {
				if redirected != "" {
					return fmt.Errorf("access to %s denied, sign in again (redirected to %s)", area.Name, redirected)
				}
				return fmt.Errorf("access to %s denied", area.Name)
			}
			fmt.Fprintf(a.out, "Access granted to %s (%s).\n", area.Name, area.Prefix)
			return nil
		},
	}
}

func (a *app) areasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "areas",
		Short: "List the dashboard areas and their roles",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			areas, err := a.areas()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AREA\tPREFIX\tROLE")
			for _, area := range areas {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", area.Name, area.Prefix, area.Role)
			}
			return tw.Flush()
		},
	}
}
