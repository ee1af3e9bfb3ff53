package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func (a *app) loginCommand() *cobra.Command {
	var (
		username   string
		password   string
		rememberMe bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("PROPDESK_PASSWORD")
			}
			reader := bufio.NewReader(a.in)
			if username == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Username: ")
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read username: %w", err)
				}
				username = strings.TrimSpace(line)
			}
			if password == "" {
				p, err := a.readPassword(cmd, reader)
				if err != nil {
					return err
				}
				password = p
			}

			resp, err := a.client.Login(cmd.Context(), username, password, rememberMe)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			name := username
			if resp.User != nil && resp.User.DisplayName != "" {
				name = resp.User.DisplayName
			}
			fmt.Fprintf(a.out, "Logged in as %s (session valid until %s)\n", name, resp.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (env PROPDESK_PASSWORD, prompted when empty)")
	cmd.Flags().BoolVar(&rememberMe, "remember", false, "request a 30 day session")
	return cmd
}

// readPassword prompts without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func (a *app) readPassword(cmd *cobra.Command, reader *bufio.Reader) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Server logout failed (%v); local token removed\n", err)
				return nil
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func (a *app) passwdCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the signed-in account's password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader := bufio.NewReader(a.in)
			current, err := a.readPassword(cmd, reader)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.ErrOrStderr(), "New ")
			next, err := a.readPassword(cmd, reader)
			if err != nil {
				return err
			}
			if err := a.client.ChangePassword(cmd.Context(), current, next); err != nil {
				return fmt.Errorf("password not changed: %w", err)
			}
			fmt.Fprintln(a.out, "Password updated")
			return nil
		},
	}
}
