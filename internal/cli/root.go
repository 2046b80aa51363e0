package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/razorquake/razorlinks/internal/cli/commands"
	"github.com/razorquake/razorlinks/internal/cli/config"
)

var version = "dev" // Will be set during build

type globalFlags struct {
	backend     string
	tokenStore  string
	sessionFile string
	routes      string
	logLevel    string
}

// NewRootCmd builds the command tree. The runtime is created lazily, once,
// after flags are parsed.
func NewRootCmd() *cobra.Command {
	var flags globalFlags
	var rt *commands.Runtime

	provide := func() (*commands.Runtime, error) {
		if rt != nil {
			return rt, nil
		}
		cfg, err := loadConfig(flags)
		if err != nil {
			return nil, err
		}
		rt, err = commands.NewRuntime(cfg, os.Stdout, os.Stderr)
		return rt, err
	}

	rootCmd := &cobra.Command{
		Use:   "razorlinks",
		Short: "RazorLinks - URL shortener",
		Long: `RazorLinks CLI - Shorten links and track clicks from your terminal.

The session is stored in the OS keychain by default and is checked for
expiry before every request.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.backend, "backend", "", "Backend URL (or set RAZORLINKS_BACKEND_URL)")
	pf.StringVar(&flags.tokenStore, "token-store", "", "Session storage: keyring, file or memory (or set RAZORLINKS_TOKEN_STORE)")
	pf.StringVar(&flags.sessionFile, "session-file", "", "Session file for --token-store=file")
	pf.StringVar(&flags.routes, "routes", "", "Route policy YAML file (or set RAZORLINKS_ROUTES_FILE)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (or set RAZORLINKS_LOG_LEVEL)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "razorlinks version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewLoginCmd(provide))
	rootCmd.AddCommand(commands.NewLogoutCmd(provide))
	rootCmd.AddCommand(commands.NewStatusCmd(provide))
	rootCmd.AddCommand(commands.NewRegisterCmd(provide))
	rootCmd.AddCommand(commands.NewVerifyEmailCmd(provide))
	rootCmd.AddCommand(commands.NewResendVerificationCmd(provide))
	rootCmd.AddCommand(commands.NewForgotPasswordCmd(provide))
	rootCmd.AddCommand(commands.NewResetPasswordCmd(provide))
	rootCmd.AddCommand(commands.NewOpenCmd(provide))
	rootCmd.AddCommand(commands.NewURLsCmd(provide))
	rootCmd.AddCommand(commands.NewClicksCmd(provide))
	rootCmd.AddCommand(commands.NewAuditCmd(provide))
	rootCmd.AddCommand(commands.NewAdminCmd(provide))
	rootCmd.AddCommand(commands.NewTwoFactorCmd(provide))

	return rootCmd
}

func loadConfig(flags globalFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.backend != "" {
		if cfg, err = cfg.WithBackendURL(flags.backend); err != nil {
			return nil, err
		}
	}
	if flags.tokenStore != "" {
		cfg.TokenStore = flags.tokenStore
	}
	if flags.sessionFile != "" {
		cfg.SessionFile = flags.sessionFile
	}
	if flags.routes != "" {
		cfg.RoutesFile = flags.routes
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
