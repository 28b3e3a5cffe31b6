// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/todosite/todosite/internal/auth"
)

const defaultUserAgent = "todosite-cli"

// newUserCmd creates the user command group.
func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long: `Register users, check credentials, change passwords and manage
login sessions. Passwords are read from a no-echo prompt, or one per
line from stdin with --password-stdin.`,
	}

	cmd.AddCommand(newUserRegisterCmd(a))
	cmd.AddCommand(newUserVerifyCmd(a))
	cmd.AddCommand(newUserLoginCmd(a))
	cmd.AddCommand(newUserLogoutCmd(a))
	cmd.AddCommand(newUserPasswdCmd(a))
	cmd.AddCommand(newUserRevokeSessionsCmd(a))

	return cmd
}

func newUserRegisterCmd(a *app) *cobra.Command {
	var (
		email     string
		username  string
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := a.readNewPassword(cmd, "Password: ", fromStdin)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withService(ctx, false, func(svc *auth.Service) error {
				identity, err := svc.Register(ctx, email, username, password)
				if err != nil {
					return err
				}
				cmd.Printf("Registered %s (id %s)\n", identity.Username, identity.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newUserVerifyCmd(a *app) *cobra.Command {
	var (
		username  string
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a username and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := a.readPassword(cmd, "Password: ", fromStdin)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withService(ctx, false, func(svc *auth.Service) error {
				identity, err := svc.Authenticate(ctx, username, password)
				if err != nil {
					return err
				}
				cmd.Printf("Credentials valid for %s (id %s)\n", identity.Username, identity.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newUserLoginCmd(a *app) *cobra.Command {
	var (
		username  string
		userAgent string
		ipAddress string
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Create a login session",
		Long: `Check a username and password and create a session. The session
token is printed alone on stdout; details go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := a.readPassword(cmd, "Password: ", fromStdin)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withService(ctx, true, func(svc *auth.Service) error {
				session, token, err := svc.Login(ctx, username, password, userAgent, ipAddress)
				if err != nil {
					return err
				}
				cmd.PrintErrf("Session %s for %s expires %s\n",
					session.ID, session.Username, session.ExpiresAt.Format(time.RFC3339))
				_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&userAgent, "user-agent", defaultUserAgent, "user agent recorded on the session")
	cmd.Flags().StringVar(&ipAddress, "ip", "", "client IP address recorded on the session")
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newUserLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session whose token is read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.readLine(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withService(ctx, true, func(svc *auth.Service) error {
				session, err := svc.ValidateSession(ctx, token)
				if err != nil {
					return err
				}
				if err := svc.Logout(ctx, session.ID); err != nil {
					return err
				}
				cmd.Printf("Ended session %s for %s\n", session.ID, session.Username)
				return nil
			})
		},
	}
}

func newUserPasswdCmd(a *app) *cobra.Command {
	var (
		username  string
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change a user's password",
		Long: `Change a user's password. The current password is required. With
--password-stdin the current password is the first line of stdin and the
new password the second. Existing sessions are ended.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			current, err := a.readPassword(cmd, "Current password: ", fromStdin)
			if err != nil {
				return err
			}
			next, err := a.readNewPassword(cmd, "New password: ", fromStdin)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withService(ctx, false, func(svc *auth.Service) error {
				identity, err := svc.Authenticate(ctx, username, current)
				if err != nil {
					return err
				}
				if err := svc.ChangePassword(ctx, identity.ID, current, next); err != nil {
					return err
				}
				cmd.Printf("Password changed for %s\n", identity.Username)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "read the passwords from stdin")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newUserRevokeSessionsCmd(a *app) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "revoke-sessions",
		Short: "End every session of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withService(ctx, true, func(svc *auth.Service) error {
				if err := svc.RevokeSessions(ctx, username); err != nil {
					return err
				}
				cmd.Printf("Revoked all sessions for %s\n", username)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}
