package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewURLsCmd creates the urls command group
func NewURLsCmd(provide Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "urls",
		Short: "Manage your short URLs",
	}

	cmd.AddCommand(newURLsListCmd(provide))
	cmd.AddCommand(newURLsShortenCmd(provide))
	cmd.AddCommand(newURLsDeleteCmd(provide))
	cmd.AddCommand(newURLsQRCmd(provide))

	return cmd
}

func newURLsListCmd(provide Provider) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List your short URLs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runURLsList(cmd.Context(), rt)
		},
	}
}

func runURLsList(ctx context.Context, rt *Runtime) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := requireRoute(rt, "/dashboard"); err != nil {
		return err
	}

	urls, err := rt.API.MyURLs(ctx)
	if err != nil {
		return err
	}

	if len(urls) == 0 {
		fmt.Fprintln(rt.Out, "No short URLs found.")
		fmt.Fprintln(rt.Out, "\nCreate one with: razorlinks urls shorten <url>")
		return nil
	}

	w := tabwriter.NewWriter(rt.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SHORT\tCLICKS\tCREATED\tORIGINAL")
	fmt.Fprintln(w, "─────\t──────\t───────\t────────")

	for _, u := range urls {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			u.ShortURL,
			u.ClickCount,
			u.CreatedDate.Local().Format(time.DateTime),
			u.OriginalURL,
		)
	}

	return w.Flush()
}

func newURLsShortenCmd(provide Provider) *cobra.Command {
	return &cobra.Command{
		Use:   "shorten <url>",
		Short: "Create a short URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runURLsShorten(cmd.Context(), rt, args[0])
		},
	}
}

func runURLsShorten(ctx context.Context, rt *Runtime, originalURL string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := requireRoute(rt, "/dashboard"); err != nil {
		return err
	}

	mapping, err := rt.API.Shorten(ctx, originalURL)
	if err != nil {
		return fmt.Errorf("failed to shorten URL: %w", err)
	}

	// Print only the short link
	fmt.Fprintf(rt.Out, "%s/%s\n", strings.TrimRight(rt.Config.BackendURL, "/"), mapping.ShortURL)
	return nil
}

func newURLsDeleteCmd(provide Provider) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <short-code>",
		Aliases: []string{"delete"},
		Short:   "Delete a short URL",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if err := rt.API.DeleteURL(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete %s: %w", args[0], err)
			}
			fmt.Fprintf(rt.Out, "Deleted %s\n", args[0])
			return nil
		},
	}
}

type qrOptions struct {
	output string
	size   int
}

func newURLsQRCmd(provide Provider) *cobra.Command {
	var opts qrOptions

	cmd := &cobra.Command{
		Use:   "qr <short-code>",
		Short: "Save a QR code of a short URL as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runURLsQR(cmd.Context(), rt, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default <short-code>.png)")
	cmd.Flags().IntVar(&opts.size, "size", 300, "Width and height in pixels (100-1000)")

	return cmd
}

func runURLsQR(ctx context.Context, rt *Runtime, code string, opts qrOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.size < 100 || opts.size > 1000 {
		return fmt.Errorf("--size must be between 100 and 1000")
	}
	if err := requireRoute(rt, "/dashboard"); err != nil {
		return err
	}

	data, err := rt.API.QRCode(ctx, code, opts.size)
	if err != nil {
		return fmt.Errorf("failed to get QR code for %s: %w", code, err)
	}

	output := opts.output
	if output == "" {
		output = code + ".png"
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	fmt.Fprintf(rt.Out, "Saved QR code of %s to %s\n", code, output)
	return nil
}
