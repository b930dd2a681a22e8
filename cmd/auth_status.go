package cmd

import (
	"errors"

	"resonate/internal/auth"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// statusVerify controls whether status performs a live refresh check.
var statusVerify bool

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Long: `Show the current session status: who is logged in, when the access
token expires, and whether the session can refresh itself.

By default this is a purely local check and never touches the network.
With --verify the token is refreshed against Spotify first, which catches
grants revoked server-side before the local expiry has passed.`,
	RunE: runAuthStatus,
}

func init() {
	authStatusCmd.Flags().BoolVar(&statusVerify, "verify", false, "Verify the session against Spotify (performs a refresh)")
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	backend, err := newAuthBackend()
	if err != nil {
		return err
	}

	authPrintln("Spotify Session")

	session := backend.manager.Peek()
	if session == nil {
		authPrint("  Status:    %s\n", text.FgYellow.Sprint("Not logged in"))
		authPrint("             Run: resonate auth login\n")
		return nil
	}

	if statusVerify {
		verified, err := backend.manager.Refresh(cmd.Context())
		switch {
		case err == nil:
			session = verified
		case errors.Is(err, auth.ErrInvalidGrant):
			authPrint("  Status:    %s\n", text.FgYellow.Sprint("Session revoked"))
			authPrint("             Your grant was revoked by Spotify.\n")
			authPrint("             Run: resonate auth login\n")
			return nil
		case auth.IsRetryable(err):
			authPrint("  Status:    %s\n", text.FgRed.Sprint("Verification failed"))
			authPrint("             %v\n", err)
			// Fall through to the local view; it may still be useful.
		default:
			return err
		}
	}

	if session.Expired() {
		authPrint("  Status:    %s\n", text.FgYellow.Sprint("Token expired"))
	} else {
		authPrint("  Status:    %s\n", text.FgGreen.Sprint("Logged in"))
	}

	authPrint("  User:      %s\n", session.User.ID)
	if session.User.DisplayName != "" {
		authPrint("  Name:      %s\n", session.User.DisplayName)
	}
	if session.IsPremium() {
		authPrint("  Product:   %s\n", text.FgGreen.Sprint("premium"))
	} else if session.User.Product != "" {
		authPrint("  Product:   %s\n", text.FgYellow.Sprintf("%s (playback unavailable)", session.User.Product))
	}
	authPrint("  Expires:   %s\n", formatExpiryWithDirection(session.ExpiresAt))

	if session.RefreshToken != "" {
		authPrint("  Refresh:   %s\n", text.FgGreen.Sprint("Available"))
	} else {
		authPrint("  Refresh:   %s\n", text.FgYellow.Sprint("Not available (re-login required on expiry)"))
	}

	return nil
}
