package cmd

import (
	"errors"
	"fmt"
	"time"

	"resonate/internal/auth"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to Spotify",
	Long: `Log in to Spotify via the browser.

This command opens the Spotify consent page in your browser and waits for
the redirect back to the local callback listener. On success the session
is stored encrypted at rest, bound to this machine.

If the browser does not open, navigate to the printed URL manually. The
flow times out if no callback arrives within the configured window.`,
	RunE: runAuthLogin,
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	backend, err := newAuthBackend()
	if err != nil {
		return err
	}

	// Already logged in with a usable session? Say so instead of bouncing
	// through the browser again.
	if session := backend.manager.Peek(); session != nil && !session.Expired() {
		authPrint("Already logged in as %s (token valid %s).\n",
			session.User.ID, formatExpiryWithDirection(session.ExpiresAt))
		authPrintln("Run 'resonate auth logout' first to log in as someone else.")
		return nil
	}

	authPrintln("Opening Spotify login in your browser...")

	var s *spinner.Spinner
	if !authQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Waiting for Spotify callback..."
		s.Start()
	}

	session, err := backend.flow.Login(cmd.Context())

	if s != nil {
		s.Stop()
	}

	if err != nil {
		return loginErrorWithHint(err)
	}

	backend.manager.Adopt(session)

	authPrint("%s Logged in as %s", text.FgGreen.Sprint("Success!"), session.User.ID)
	if session.User.DisplayName != "" {
		authPrint(" (%s)", session.User.DisplayName)
	}
	authPrintln()

	if !session.IsPremium() {
		authPrintln(text.FgYellow.Sprint("Note: this account is not Premium; in-app playback will be unavailable."))
	}
	return nil
}

// loginErrorWithHint wraps a login failure with a user-facing hint where one
// exists. The original error is preserved for exit-code classification.
func loginErrorWithHint(err error) error {
	switch {
	case errors.Is(err, auth.ErrLoginTimeout):
		return fmt.Errorf("%w: no callback received, complete the login in your browser and try again", err)
	case errors.Is(err, auth.ErrBindFailed):
		return fmt.Errorf("%w: another process is using the callback port, stop it and try again", err)
	case errors.Is(err, auth.ErrLoginInProgress):
		return fmt.Errorf("%w: finish or cancel the other login attempt first", err)
	}

	var provErr *auth.ProviderError
	if errors.As(err, &provErr) && provErr.Code == "access_denied" {
		return fmt.Errorf("%w: you declined the authorization request", err)
	}
	return err
}
