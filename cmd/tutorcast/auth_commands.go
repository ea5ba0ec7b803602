package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the backend session",
	}

	authCmd.AddCommand(newAuthLoginCommand(ctx))
	authCmd.AddCommand(newAuthSignupCommand(ctx))
	authCmd.AddCommand(newAuthLogoutCommand(ctx))
	authCmd.AddCommand(newAuthWhoamiCommand(ctx))
	authCmd.AddCommand(newAuthForgotPasswordCommand(ctx))
	authCmd.AddCommand(newAuthResetPasswordCommand(ctx))

	return authCmd
}

// readSecret returns the flag value when set, otherwise prompts on stdout
// and reads one line from stdin.
func readSecret(cmd *cobra.Command, flagValue, prompt string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ", prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(prompt), err)
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(prompt))
	}
	return value, nil
}

func newAuthLoginCommand(ctx *commandContext) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and persist the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.sessionManager()
			if err != nil {
				return err
			}
			secret, err := readSecret(cmd, password, "Password")
			if err != nil {
				return err
			}
			user, err := manager.Login(cmd.Context(), args[0], secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Name, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	return cmd
}

func newAuthSignupCommand(ctx *commandContext) *cobra.Command {
	var password string
	var name string

	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				return errors.New("--name is required")
			}
			manager, err := ctx.sessionManager()
			if err != nil {
				return err
			}
			secret, err := readSecret(cmd, password, "Password")
			if err != nil {
				return err
			}
			user, err := manager.Signup(cmd.Context(), args[0], secret, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created; signed in as %s (%s)\n", user.Name, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	return cmd
}

func newAuthLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.sessionManager()
			if err != nil {
				return err
			}
			if err := manager.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newAuthWhoamiCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.sessionManager()
			if err != nil {
				return err
			}
			user, ok := manager.CurrentUser()
			if !ok {
				return errNotSignedIn
			}
			if asJSON {
				return writeJSON(cmd, user)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:  %s\n", orDash(user.Name))
			fmt.Fprintf(out, "Email: %s\n", user.Email)
			fmt.Fprintf(out, "ID:    %s\n", user.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newAuthForgotPasswordCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password <email>",
		Short: "Request a password reset link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := ctx.sessionManager()
			if err != nil {
				return err
			}
			debug, err := manager.RequestPasswordReset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "If the address exists, a reset link has been sent")
			if debug != nil {
				// non-production backends return the token directly
				fmt.Fprintf(out, "Reset token: %s\n", debug.ResetToken)
				if debug.ResetLink != "" {
					fmt.Fprintf(out, "Reset link:  %s\n", debug.ResetLink)
				}
			}
			return nil
		},
	}
}

func newAuthResetPasswordCommand(ctx *commandContext) *cobra.Command {
	var token string
	var password string

	cmd := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Complete a password reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(token) == "" {
				return errors.New("--token is required")
			}
			manager, err := ctx.sessionManager()
			if err != nil {
				return err
			}
			secret, err := readSecret(cmd, password, "New password")
			if err != nil {
				return err
			}
			if err := manager.CompletePasswordReset(cmd.Context(), args[0], token, secret); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password updated; sign in with the new password")
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Reset token from the email or forgot-password output")
	cmd.Flags().StringVarP(&password, "password", "p", "", "New password (prompted when omitted)")
	return cmd
}
