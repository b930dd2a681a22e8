package cmd

import (
	"errors"
	"os"

	"resonate/internal/auth"
	"resonate/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands. These follow common conventions so scripts
// can distinguish "log in first" from "the login itself failed".
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

var rootDebug bool

// rootCmd represents the base command for the resonate application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "resonate",
	Short: "Native Spotify companion backend",
	Long: `resonate is the native backend of a desktop Spotify companion.
It owns the browser-based OAuth login, keeps the session encrypted at
rest bound to this machine, and hands fresh access tokens to the UI.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelWarn
		if rootDebug {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the
// application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It initializes and executes the root command, which in turn handles
// subcommands and flags. This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "resonate version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return ExitCodeAuthRequired
	}

	// Failures of the login flow itself.
	var provErr *auth.ProviderError
	if errors.Is(err, auth.ErrLoginTimeout) ||
		errors.Is(err, auth.ErrStateMismatch) ||
		errors.Is(err, auth.ErrLoginInProgress) ||
		errors.Is(err, auth.ErrBindFailed) ||
		errors.Is(err, auth.ErrInvalidGrant) ||
		errors.As(err, &provErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(newVersionCmd())
}
