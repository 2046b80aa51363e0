package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/razorquake/razorlinks/internal/cli/client"
	"github.com/razorquake/razorlinks/internal/cli/session"
)

const maxCodeAttempts = 3

type loginOptions struct {
	username string
	password string
	code     string
}

// NewLoginCmd creates the login command
func NewLoginCmd(provide Provider) *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a RazorLinks backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runLogin(cmd.Context(), rt, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "Username (or set RAZORLINKS_USERNAME)")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password (or set RAZORLINKS_PASSWORD, will prompt if not provided)")
	cmd.Flags().StringVar(&opts.code, "code", "", "2FA code (will prompt if required and not provided)")

	return cmd
}

func runLogin(ctx context.Context, rt *Runtime, opts loginOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// login is public-only; this also ends an expired session first
	if d := rt.Guard.Navigate("/login"); !d.Allowed && d.Reason == session.ReasonAlreadyAuthenticated {
		fmt.Fprintf(rt.Out, "Already logged in as %s\n", rt.Guard.Session().Username())
		fmt.Fprintln(rt.Out, "Run 'razorlinks logout' to switch accounts")
		return nil
	}

	if opts.username == "" {
		opts.username = rt.Config.Username
	}
	if opts.password == "" {
		opts.password = rt.Config.Password
	}
	if opts.username == "" {
		return fmt.Errorf("username is required (use --username flag or RAZORLINKS_USERNAME env var)")
	}
	if opts.password == "" {
		p, err := readSecret(rt, "Password", "use --password flag or RAZORLINKS_PASSWORD env var")
		if err != nil {
			return err
		}
		opts.password = p
	}

	fmt.Fprintf(rt.Err, "Logging in to %s as %s...\n", rt.Config.BackendURL, opts.username)

	ticket := rt.Guard.BeginLogin()
	result, err := rt.API.Login(ctx, opts.username, opts.password)
	if err != nil {
		return loginError(opts.username, err)
	}

	if result.TwoFactorRequired {
		ticket, err = verifyTwoFactor(ctx, rt, opts.code, result.Token)
		if err != nil {
			return err
		}
	}

	s, err := rt.Guard.CompleteLoginAttempt(ticket, result.Token)
	if errors.Is(err, session.ErrStaleLogin) {
		return fmt.Errorf("login superseded by another session change, please try again")
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	// roles from the token are provisional; the backend is authoritative
	if err := rt.Guard.RefreshIdentity(ctx, rt.API); err != nil {
		rt.Logger.Warn().Err(err).Msg("Could not refresh identity after login")
	} else {
		s = rt.Guard.Session()
	}

	if s.IsAdmin {
		fmt.Fprintln(rt.Out, "  Role: Admin")
	}
	return nil
}

// verifyTwoFactor confirms the login with a TOTP code and returns the ticket
// the token must be adopted under. A rejected code answers 401, which moves
// the session generation, so every attempt takes a fresh ticket.
func verifyTwoFactor(ctx context.Context, rt *Runtime, code, pendingToken string) (session.LoginTicket, error) {
	attempts := maxCodeAttempts
	if code != "" {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		c := code
		if c == "" {
			var err error
			if c, err = promptCode(rt); err != nil {
				return session.LoginTicket{}, err
			}
		} else if err := validateCode(c); err != nil {
			return session.LoginTicket{}, err
		}

		ticket := rt.Guard.BeginLogin()
		err := rt.API.VerifyTwoFactorLogin(ctx, c, pendingToken)
		if err == nil {
			return ticket, nil
		}
		lastErr = err

		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
			break
		}
		fmt.Fprintln(rt.Err, "Invalid 2FA code. Please try again.")
	}
	return session.LoginTicket{}, fmt.Errorf("2FA verification failed: %w", lastErr)
}

func loginError(username string, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "verify your email") {
		return fmt.Errorf("%s\nRun 'razorlinks resend-verification --username %s' to get a new link", apiErr.Message, username)
	}
	return fmt.Errorf("login failed: %w", err)
}
