package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/cloud"
	"github.com/clipforge/clipforge-agent/internal/session"
)

func newAuthCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newLoginCommand(ctx),
		newRegisterCommand(ctx),
		newLogoutCommand(ctx),
		newWhoamiCommand(ctx),
		newProfileCommand(ctx),
	}
}

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var password string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in to the shorts backend and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(cmd, password, passwordStdin)
			if err != nil {
				return err
			}
			client := ctx.cloudClient(cmd)
			resp, err := client.Login(cmd.Context(), strings.TrimSpace(args[0]), pw)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if err := saveSession(ctx.sessionStore(), resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayName(resp.User))
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var reg cloud.Registration
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create a backend account and log in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg.Username = strings.TrimSpace(args[0])
			if strings.TrimSpace(reg.Email) == "" {
				return errors.New("--email is required")
			}
			pw, err := resolvePassword(cmd, reg.Password, passwordStdin)
			if err != nil {
				return err
			}
			reg.Password = pw

			resp, err := ctx.cloudClient(cmd).Register(cmd.Context(), reg)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			if err := saveSession(ctx.sessionStore(), resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s\n", displayName(resp.User))
			return nil
		},
	}

	cmd.Flags().StringVar(&reg.Email, "email", "", "Account email")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "Account password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "Last name")
	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the backend token and forget the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := ctx.sessionStore()
			sess, err := store.Load()
			if err != nil {
				return err
			}
			if sess.Valid() {
				// The local session is cleared even when the backend is unreachable.
				if err := ctx.cloudClient(cmd).Logout(cmd.Context()); err != nil {
					ctx.loggerFor(cmd).Warn("backend logout failed", "error", err)
				}
			}
			if err := store.Clear(); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.requireLogin()
			if err != nil {
				return err
			}
			user := sess.User
			if !offline {
				profile, err := ctx.cloudClient(cmd).Profile(cmd.Context())
				if err != nil {
					return fmt.Errorf("fetch profile: %w", err)
				}
				user = *profile
			}
			if jsonOutput {
				return writeJSON(cmd, user)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend: %s\n", ctx.cloudClient(cmd).BaseURL())
			fmt.Fprintf(out, "User:    %s\n", displayName(user))
			fmt.Fprintf(out, "Email:   %s\n", fallback(user.Email, "-"))
			if !sess.SavedAt.IsZero() {
				fmt.Fprintf(out, "Since:   %s\n", formatTimestamp(sess.SavedAt))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Show the stored session without asking the backend")
	return cmd
}

func newProfileCommand(ctx *commandContext) *cobra.Command {
	var update cloud.ProfileUpdate

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update the logged-in user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if update == (cloud.ProfileUpdate{}) {
				return errors.New("nothing to update (use --username, --email, --first-name or --last-name)")
			}
			sess, err := ctx.requireLogin()
			if err != nil {
				return err
			}
			user, err := ctx.cloudClient(cmd).UpdateProfile(cmd.Context(), update)
			if err != nil {
				return fmt.Errorf("update profile: %w", err)
			}
			sess.User = *user
			if err := ctx.sessionStore().Save(sess); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile updated for %s\n", displayName(*user))
			return nil
		},
	}

	cmd.Flags().StringVar(&update.Username, "username", "", "New username")
	cmd.Flags().StringVar(&update.Email, "email", "", "New email")
	cmd.Flags().StringVar(&update.FirstName, "first-name", "", "New first name")
	cmd.Flags().StringVar(&update.LastName, "last-name", "", "New last name")
	return cmd
}

func saveSession(store session.Store, resp *cloud.AuthResponse) error {
	if resp == nil || resp.Token == "" {
		return errors.New("backend returned no token")
	}
	if err := store.Save(session.Session{Token: resp.Token, User: resp.User}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// resolvePassword takes the flag value or the first line of stdin.
func resolvePassword(cmd *cobra.Command, flagValue string, fromStdin bool) (string, error) {
	if !fromStdin {
		if flagValue == "" {
			return "", errors.New("a password is required (use --password or --password-stdin)")
		}
		return flagValue, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on stdin")
	}
	return line, nil
}

func displayName(u cloud.User) string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	switch {
	case full != "" && u.Username != "":
		return fmt.Sprintf("%s (%s)", u.Username, full)
	case u.Username != "":
		return u.Username
	default:
		return fallback(u.Email, "unknown user")
	}
}
