package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/razorquake/razorlinks/internal/cli/session"
)

// NewForgotPasswordCmd creates the forgot-password command
func NewForgotPasswordCmd(provide Provider) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Email yourself a password reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runForgotPassword(cmd.Context(), rt, email)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address of the account")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runForgotPassword(ctx context.Context, rt *Runtime, email string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if d := rt.Guard.Navigate("/forgot-password"); !d.Allowed && d.Reason == session.ReasonAlreadyAuthenticated {
		return fmt.Errorf("already logged in as %s, run 'razorlinks logout' first", rt.Guard.Session().Username())
	}

	resp, err := rt.API.ForgotPassword(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to request password reset: %w", err)
	}

	fmt.Fprintln(rt.Out, resp.Message)
	fmt.Fprintln(rt.Out, "Then run: razorlinks reset-password --token <token from the email>")
	return nil
}

// NewResetPasswordCmd creates the reset-password command
func NewResetPasswordCmd(provide Provider) *cobra.Command {
	var token, password string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Choose a new password with a reset token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runResetPassword(cmd.Context(), rt, token, password)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Reset token from the email")
	cmd.Flags().StringVar(&password, "password", "", "New password (will prompt if not provided)")
	cmd.MarkFlagRequired("token")

	return cmd
}

func runResetPassword(ctx context.Context, rt *Runtime, token, password string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if d := rt.Guard.Navigate("/reset-password"); !d.Allowed && d.Reason == session.ReasonAlreadyAuthenticated {
		return fmt.Errorf("already logged in as %s, run 'razorlinks logout' first", rt.Guard.Session().Username())
	}

	if password == "" {
		p, err := readSecret(rt, "New password", "use --password flag")
		if err != nil {
			return err
		}
		password = p
	}

	resp, err := rt.API.ResetPassword(ctx, token, password)
	if err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}

	fmt.Fprintln(rt.Out, resp.Message)
	fmt.Fprintln(rt.Out, "Log in with: razorlinks login")
	return nil
}
