package commands

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

// NewOpenCmd creates the open command
func NewOpenCmd(provide Provider) *cobra.Command {
	var browser bool

	cmd := &cobra.Command{
		Use:   "open <route>",
		Short: "Check access to a route of the web app, optionally opening it",
		Long: `Evaluate a web app route against the session and the route policy.

Prints "allow" or the redirect the web app would perform. With --browser the
resulting page (the route itself, or the redirect target) is opened.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := provide()
			if err != nil {
				return err
			}
			return runOpen(rt, args[0], browser, openBrowser)
		},
	}

	cmd.Flags().BoolVar(&browser, "browser", false, "Open the resulting page in the default browser")

	return cmd
}

func runOpen(rt *Runtime, route string, browser bool, open func(string) error) error {
	decision := rt.Guard.Navigate(route)
	fmt.Fprintf(rt.Out, "%s: %s\n", route, decision)

	if !browser {
		return nil
	}

	target := route
	if !decision.Allowed {
		target = decision.RedirectTo
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	pageURL := strings.TrimRight(rt.Config.FrontendURL, "/") + target

	fmt.Fprintf(rt.Err, "Opening %s...\n", pageURL)
	if err := open(pageURL); err != nil {
		return fmt.Errorf("failed to open browser: %w\nPlease visit: %s", err, pageURL)
	}
	return nil
}

// openBrowser opens the URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
