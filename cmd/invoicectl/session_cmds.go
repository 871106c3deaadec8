package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jrsteele09/go-invoice-session/session"
	"github.com/spf13/cobra"
)

func newLoginCmd(c *cli) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long:  "Sign in and replace any session stored on this machine. Without --password the password is read from the first line of stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				var err error
				if password, err = readLine(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("reading password: %w", err)
				}
			}

			s, err := c.app.Manager.SignIn(cmd.Context(), email, password)
			if err != nil {
				if session.IsCredentialRejection(err) {
					return fmt.Errorf("sign-in rejected: %w", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (token valid until %s)\n",
				s.User.Email, s.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTokenCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid ID token, refreshing it if it is about to expire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := c.app.Manager.Token(cmd.Context())
			if err != nil {
				return err
			}
			if token == "" {
				return errNotSignedIn
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the user cached with the session",
		Long:  "Show the cached user without contacting the identity provider. The session may have expired.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user := c.app.Manager.CachedUser(cmd.Context())
			if user == nil {
				return errNotSignedIn
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(user)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := c.app.Manager.State(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "state:         %s\n", state)

			s, err := c.app.Manager.Current(cmd.Context())
			if err != nil || s == nil {
				return err
			}
			fmt.Fprintf(w, "user:          %s\n", s.User.Email)
			fmt.Fprintf(w, "expires:       %s\n", s.ExpiresAt.Local().Format(time.RFC1123))
			fmt.Fprintf(w, "refreshable:   %t\n", s.CanRefresh())
			if claims, err := session.UnverifiedClaims(s.IDToken); err == nil {
				fmt.Fprintf(w, "issuer:        %s\n", claims.Issuer)
			}
			return nil
		},
	}
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Manager.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
