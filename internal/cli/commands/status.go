package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/razorquake/razorlinks/internal/cli/session"
)

// NewStatusCmd creates the status command
func NewStatusCmd(provide Provider) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), rt, refresh)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refresh roles from the backend")

	return cmd
}

func runStatus(ctx context.Context, rt *Runtime, refresh bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// evaluating the landing route ends an expired session
	rt.Guard.Navigate(rt.Guard.Policy().Targets().Landing)

	if refresh && rt.Guard.Session().Authenticated() {
		if err := rt.Guard.RefreshIdentity(ctx, rt.API); err != nil {
			rt.Logger.Warn().Err(err).Msg("Could not refresh identity")
		}
	}

	s := rt.Guard.Session()
	fmt.Fprintf(rt.Out, "Backend:  %s\n", rt.Config.BackendURL)
	fmt.Fprintf(rt.Out, "State:    %s\n", s.State())
	if !s.Authenticated() {
		return nil
	}

	if s.Username() != "" {
		fmt.Fprintf(rt.Out, "User:     %s\n", s.Username())
	}
	if s.Identity != nil {
		fmt.Fprintf(rt.Out, "Roles:    %s\n", strings.Join(s.Identity.Roles.List(), ", "))
	}
	fmt.Fprintf(rt.Out, "Admin:    %t\n", s.IsAdmin)

	if claims, err := session.DecodeToken(s.Token); err == nil && claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		fmt.Fprintf(rt.Out, "Expires:  %s (skew %s)\n", exp.Local().Format(time.RFC3339), rt.Guard.Skew())
	}
	return nil
}
