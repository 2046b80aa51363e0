package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd(provide Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runLogout(rt)
		},
	}
}

func runLogout(rt *Runtime) error {
	wasAuthenticated := rt.Guard.Session().Authenticated()
	if err := rt.Guard.Logout(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if !wasAuthenticated {
		fmt.Fprintln(rt.Out, "Not logged in.")
	}
	return nil
}
