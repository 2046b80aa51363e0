package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/razorquake/razorlinks/internal/cli/client"
)

// NewAdminCmd creates the admin command group
func NewAdminCmd(provide Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage user accounts (admin)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "users",
		Short: "List every account",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runAdminUsers(cmd.Context(), rt)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "user <id>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runAdminUser(cmd.Context(), rt, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-role <id> <user|admin>",
		Short: "Change the role of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runAdminSetRole(cmd.Context(), rt, args[0], args[1])
		},
	})

	return cmd
}

func runAdminUsers(ctx context.Context, rt *Runtime) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := requireRoute(rt, "/admin/users"); err != nil {
		return err
	}

	users, err := rt.API.Users(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(rt.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tVERIFIED\t2FA\tROLES")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%s\n",
			u.ID,
			u.Username,
			u.Email,
			u.Enabled,
			u.TwoFactorEnabled,
			strings.Join(u.Roles, ", "),
		)
	}
	return w.Flush()
}

func runAdminUser(ctx context.Context, rt *Runtime, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := requireRoute(rt, "/admin/users/"+id); err != nil {
		return err
	}

	u, err := rt.API.User(ctx, id)
	if err != nil {
		return err
	}
	printUser(rt, u)
	return nil
}

func printUser(rt *Runtime, u *client.UserInfo) {
	fmt.Fprintf(rt.Out, "ID:       %s\n", u.ID)
	fmt.Fprintf(rt.Out, "Username: %s\n", u.Username)
	fmt.Fprintf(rt.Out, "Email:    %s\n", u.Email)
	fmt.Fprintf(rt.Out, "Verified: %t\n", u.Enabled)
	fmt.Fprintf(rt.Out, "2FA:      %t\n", u.TwoFactorEnabled)
	fmt.Fprintf(rt.Out, "Roles:    %s\n", strings.Join(u.Roles, ", "))
}

// roleName accepts "user", "admin" or the full role name
func roleName(input string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "USER", "ROLE_USER":
		return "ROLE_USER", nil
	case "ADMIN", "ROLE_ADMIN":
		return "ROLE_ADMIN", nil
	}
	return "", fmt.Errorf("unknown role %q (use user or admin)", input)
}

func runAdminSetRole(ctx context.Context, rt *Runtime, id, role string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	name, err := roleName(role)
	if err != nil {
		return err
	}
	if err := requireRoute(rt, "/admin/users/"+id); err != nil {
		return err
	}

	resp, err := rt.API.UpdateRole(ctx, id, name)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	fmt.Fprintln(rt.Out, resp.Message)

	// the change may concern this session's own account
	if err := rt.Guard.RefreshIdentity(ctx, rt.API); err != nil {
		rt.Logger.Warn().Err(err).Msg("Could not refresh identity after role change")
	}
	if !rt.Guard.Session().IsAdmin {
		fmt.Fprintln(rt.Out, "You no longer hold the admin role.")
	}
	return nil
}
