package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/razorquake/razorlinks/internal/cli/client"
	"github.com/razorquake/razorlinks/internal/cli/session"
)

// NewRegisterCmd creates the register command
func NewRegisterCmd(provide Provider) *cobra.Command {
	var req client.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runRegister(cmd.Context(), rt, req)
		},
	}

	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (will prompt if not provided)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runRegister(ctx context.Context, rt *Runtime, req client.RegisterRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if d := rt.Guard.Navigate("/register"); !d.Allowed && d.Reason == session.ReasonAlreadyAuthenticated {
		return fmt.Errorf("already logged in as %s, run 'razorlinks logout' first", rt.Guard.Session().Username())
	}

	if req.Password == "" {
		p, err := readSecret(rt, "Password", "use --password flag")
		if err != nil {
			return err
		}
		req.Password = p
	}

	resp, err := rt.API.Register(ctx, req)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Fprintln(rt.Out, resp.Message)
	fmt.Fprintf(rt.Out, "Then run: razorlinks verify-email --token <token from the email>\n")
	return nil
}

// NewVerifyEmailCmd creates the verify-email command
func NewVerifyEmailCmd(provide Provider) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "verify-email",
		Short: "Verify your email address and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runVerifyEmail(cmd.Context(), rt, token)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Verification token from the email")
	cmd.MarkFlagRequired("token")

	return cmd
}

func runVerifyEmail(ctx context.Context, rt *Runtime, token string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// ends an expired session; a live one is never replaced silently
	rt.Guard.Navigate("/verify-email")
	if s := rt.Guard.Session(); s.Authenticated() {
		return fmt.Errorf("already logged in as %s, run 'razorlinks logout' before verifying another account", s.Username())
	}

	ticket := rt.Guard.BeginLogin()
	resp, err := rt.API.VerifyEmail(ctx, token)
	if err != nil {
		return fmt.Errorf("email verification failed: %w", err)
	}

	fmt.Fprintln(rt.Out, resp.Message)
	if !resp.Status || resp.Token == "" {
		return nil
	}

	if _, err := rt.Guard.CompleteLoginAttempt(ticket, resp.Token); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	if err := rt.Guard.RefreshIdentity(ctx, rt.API); err != nil {
		rt.Logger.Warn().Err(err).Msg("Could not refresh identity after verification")
	}
	return nil
}

// NewResendVerificationCmd creates the resend-verification command
func NewResendVerificationCmd(provide Provider) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "resend-verification",
		Short: "Send a new email verification link",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runResendVerification(cmd.Context(), rt, username)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.MarkFlagRequired("username")

	return cmd
}

func runResendVerification(ctx context.Context, rt *Runtime, username string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// public call; this ends an expired session so no stale token is sent
	rt.Guard.Navigate("/login")

	resp, err := rt.API.ResendVerification(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to resend verification email: %w", err)
	}
	fmt.Fprintln(rt.Out, resp.Message)
	return nil
}
