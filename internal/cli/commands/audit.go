package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/razorquake/razorlinks/internal/cli/client"
)

// NewAuditCmd creates the audit command (admin only)
func NewAuditCmd(provide Provider) *cobra.Command {
	var urlID string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runAudit(cmd.Context(), rt, urlID)
		},
	}

	cmd.Flags().StringVar(&urlID, "url", "", "Only entries of this URL mapping ID")

	return cmd
}

func runAudit(ctx context.Context, rt *Runtime, urlID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// a redirect is reported instead of calling the API
	if err := requireRoute(rt, "/admin/auditlogs"); err != nil {
		return err
	}

	var (
		logs []client.AuditLog
		err  error
	)
	if urlID != "" {
		logs, err = rt.API.AuditLogsForURL(ctx, urlID)
	} else {
		logs, err = rt.API.AuditLogs(ctx)
	}
	if err != nil {
		return err
	}

	if len(logs) == 0 {
		fmt.Fprintln(rt.Out, "No audit entries.")
		return nil
	}

	w := tabwriter.NewWriter(rt.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tUSER\tSHORT\tURL ID")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			l.Timestamp.Local().Format(time.DateTime),
			l.Action,
			l.Username,
			l.ShortURL,
			l.URLMappingID,
		)
	}
	return w.Flush()
}
