package cmd

import (
	"fmt"

	"resonate/internal/auth"
	"resonate/internal/config"

	"github.com/spf13/cobra"
)

var (
	authConfigPath string
	authQuiet      bool
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Spotify session",
	Long: `Manage the Spotify session for resonate.

The auth command group provides subcommands to login, logout, check status,
force a token refresh and print the current access token. The session is
stored encrypted at rest, bound to this machine.

Examples:
  resonate auth login                  # Browser-based Spotify login
  resonate auth status                 # Show session status
  resonate auth logout                 # Discard the stored session
  resonate auth refresh                # Force a token refresh
  resonate auth token                  # Print a fresh access token
  resonate auth whoami                 # Show the logged-in user`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored session",
	Long: `Discard the encrypted session file and the in-memory session.

Logout is local only: it does not revoke the grant with Spotify. Running
it while already logged out succeeds silently.`,
	RunE: runAuthLogout,
}

// authRefreshCmd represents the auth refresh command
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a token refresh",
	Long: `Force a refresh of the access token, even if it has not expired.

Useful when a token was invalidated server-side or when diagnosing
authentication issues. A revoked grant discards the session and requires
a new login.`,
	RunE: runAuthRefresh,
}

// authTokenCmd represents the auth token command
var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a fresh access token",
	Long: `Print an access token guaranteed to be valid for at least the
configured refresh margin, refreshing it first if needed.

The token is printed on its own line so it composes with scripts:
  curl -H "Authorization: Bearer $(resonate auth token)" ...`,
	RunE: runAuthToken,
}

// authWhoamiCmd represents the auth whoami command
var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in Spotify user",
	Long: `Show the identity of the currently logged-in Spotify user,
including the product tier the companion's playback features depend on.`,
	RunE: runAuthWhoami,
}

// authPrint prints output only if the --quiet flag is not set.
// Use this for progress messages and non-essential output.
func authPrint(format string, args ...interface{}) {
	if !authQuiet {
		fmt.Printf(format, args...)
	}
}

// authPrintln prints a line only if the --quiet flag is not set.
func authPrintln(a ...interface{}) {
	if !authQuiet {
		fmt.Println(a...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authTokenCmd)
	authCmd.AddCommand(authWhoamiCmd)

	// Common flags shared across auth subcommands
	authCmd.PersistentFlags().StringVar(&authConfigPath, "config-path", config.GetDefaultConfigPathOrPanic(), "Configuration directory")
	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress non-essential output")
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	backend, err := newAuthBackend()
	if err != nil {
		return err
	}

	hadSession := backend.store.Exists()
	if err := backend.manager.Logout(cmd.Context()); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	if hadSession {
		authPrintln("Logged out.")
	} else {
		authPrintln("No stored session to clear.")
	}
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	backend, err := newAuthBackend()
	if err != nil {
		return err
	}

	authPrintln("Refreshing token...")
	session, err := backend.manager.Refresh(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	authPrint("Token refreshed, valid until %s.\n", formatExpiryWithDirection(session.ExpiresAt))
	return nil
}

func runAuthToken(cmd *cobra.Command, args []string) error {
	backend, err := newAuthBackend()
	if err != nil {
		return err
	}

	token, err := backend.manager.AccessToken(cmd.Context())
	if err != nil {
		return err
	}

	// Always printed, even under --quiet: the token is the output.
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runAuthWhoami(cmd *cobra.Command, args []string) error {
	backend, err := newAuthBackend()
	if err != nil {
		return err
	}

	session, err := backend.manager.Current(cmd.Context())
	if err != nil {
		return err
	}

	printIdentity(session)
	return nil
}

// printIdentity prints the logged-in user, identity first.
func printIdentity(session *auth.Session) {
	if session.User.DisplayName != "" {
		fmt.Printf("Identity:  %s (%s)\n", session.User.DisplayName, session.User.ID)
	} else {
		fmt.Printf("Identity:  %s\n", session.User.ID)
	}
	if session.User.Email != "" {
		fmt.Printf("Email:     %s\n", session.User.Email)
	}
	if session.User.Product != "" {
		fmt.Printf("Product:   %s\n", session.User.Product)
	}
	if session.User.Country != "" {
		fmt.Printf("Country:   %s\n", session.User.Country)
	}
	fmt.Printf("Expires:   %s\n", formatExpiryWithDirection(session.ExpiresAt))
}
