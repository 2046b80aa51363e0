package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/razorquake/razorlinks/internal/cli/client"
)

type clicksOptions struct {
	from string
	to   string
	days int
	url  string
}

// NewClicksCmd creates the clicks command
func NewClicksCmd(provide Provider) *cobra.Command {
	var opts clicksOptions

	cmd := &cobra.Command{
		Use:   "clicks",
		Short: "Show clicks per day across your short URLs, or for one with --url",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runClicks(cmd.Context(), rt, opts, time.Now())
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "End date (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&opts.days, "days", 7, "Number of days ending at --to, when --from is not set")
	cmd.Flags().StringVar(&opts.url, "url", "", "Only clicks of this short code")

	return cmd
}

func (o clicksOptions) window(now time.Time) (time.Time, time.Time, error) {
	end := now
	if o.to != "" {
		t, err := time.Parse(time.DateOnly, o.to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", o.to, err)
		}
		end = t
	}

	var start time.Time
	if o.from != "" {
		t, err := time.Parse(time.DateOnly, o.from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", o.from, err)
		}
		start = t
	} else {
		if o.days < 1 {
			return time.Time{}, time.Time{}, fmt.Errorf("--days must be at least 1")
		}
		start = end.AddDate(0, 0, -(o.days - 1))
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date %s is after end date %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return start, end, nil
}

func runClicks(ctx context.Context, rt *Runtime, opts clicksOptions, now time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}

	start, end, err := opts.window(now)
	if err != nil {
		return err
	}
	if err := requireRoute(rt, "/dashboard"); err != nil {
		return err
	}

	var days []client.DailyClicks
	if opts.url != "" {
		days, err = rt.API.URLAnalytics(ctx, opts.url, start, end)
	} else {
		days, err = rt.API.TotalClicks(ctx, start, end)
	}
	if err != nil {
		return err
	}

	if len(days) == 0 {
		fmt.Fprintf(rt.Out, "No clicks between %s and %s.\n", start.Format(time.DateOnly), end.Format(time.DateOnly))
		return nil
	}
	if opts.url != "" {
		fmt.Fprintf(rt.Out, "Clicks of %s\n", opts.url)
	}

	var total int64
	w := tabwriter.NewWriter(rt.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tCLICKS")
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%d\n", d.Date, d.Clicks)
		total += d.Clicks
	}
	fmt.Fprintf(w, "TOTAL\t%d\n", total)
	return w.Flush()
}
