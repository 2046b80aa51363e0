package commands

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// NewTwoFactorCmd creates the 2fa command group
func NewTwoFactorCmd(provide Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Manage two-factor authentication",
	}

	run := func(fn func(ctx context.Context, rt *Runtime, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := requireRoute(rt, "/dashboard"); err != nil {
				return err
			}
			return fn(ctx, rt, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether 2FA is enabled",
		RunE: run(func(ctx context.Context, rt *Runtime, args []string) error {
			enabled, err := rt.API.TwoFactorStatus(ctx)
			if err != nil {
				return err
			}
			if enabled {
				fmt.Fprintln(rt.Out, "2FA is enabled")
			} else {
				fmt.Fprintln(rt.Out, "2FA is disabled")
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Generate a 2FA secret; confirm it with '2fa verify <code>'",
		RunE: run(runEnableTwoFactor),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "verify <code>",
		Short: "Confirm a code from your authenticator app to activate 2FA",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, rt *Runtime, args []string) error {
			if err := validateCode(args[0]); err != nil {
				return err
			}
			if err := rt.API.VerifyTwoFactor(ctx, args[0]); err != nil {
				return fmt.Errorf("2FA verification failed: %w", err)
			}
			fmt.Fprintln(rt.Out, "✓ 2FA enabled. You will be asked for a code at login.")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "disable",
		Short: "Turn 2FA off",
		RunE: run(func(ctx context.Context, rt *Runtime, args []string) error {
			if err := rt.API.DisableTwoFactor(ctx); err != nil {
				return err
			}
			fmt.Fprintln(rt.Out, "2FA disabled")
			return nil
		}),
	})

	return cmd
}

func runEnableTwoFactor(ctx context.Context, rt *Runtime, args []string) error {
	otpauthURL, err := rt.API.EnableTwoFactor(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(rt.Out, "Add this account to your authenticator app:")
	fmt.Fprintf(rt.Out, "  %s\n", otpauthURL)
	if u, err := url.Parse(otpauthURL); err == nil {
		if secret := u.Query().Get("secret"); secret != "" {
			fmt.Fprintf(rt.Out, "  Secret: %s\n", secret)
		}
	}
	fmt.Fprintln(rt.Out, "Then run: razorlinks 2fa verify <code>")
	return nil
}
