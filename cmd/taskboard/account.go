package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Joseda-hg/taskboard/internal/account"
)

func loginCmd(flags *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if email == "" {
				if email, err = prompt(cmd, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptSecret(cmd, "Password: "); err != nil {
					return err
				}
			}

			user, err := a.account.Login(cmd.Context(), account.LoginForm{Email: email, Password: password})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	return cmd
}

func logoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.account.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func registerCmd(flags *globalFlags) *cobra.Command {
	var form account.RegisterForm
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if form.Password == "" {
				if form.Password, err = promptSecret(cmd, "Password: "); err != nil {
					return err
				}
				if form.ConfirmPassword, err = promptSecret(cmd, "Confirm password: "); err != nil {
					return err
				}
			} else if form.ConfirmPassword == "" {
				form.ConfirmPassword = form.Password
			}

			user, err := a.account.Register(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s, run `taskboard login` to sign in\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&form.Email, "email", "", "account email")
	cmd.Flags().StringVar(&form.FullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&form.FatherName, "father-name", "", "father name")
	cmd.Flags().StringVar(&form.CountryCode, "country-code", account.DefaultCountryCode, "phone country code")
	cmd.Flags().StringVar(&form.PhoneNumber, "phone", "", "phone number")
	cmd.Flags().StringVar(&form.Password, "password", "", "password (prompted when empty)")
	return cmd
}

func whoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.account.RefreshProfile(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", user.DisplayName())
			fmt.Fprintf(out, "  id:    %s\n", user.ID)
			fmt.Fprintf(out, "  email: %s\n", user.Email)
			if user.PhoneNumber != "" {
				fmt.Fprintf(out, "  phone: %s\n", user.PhoneNumber)
			}
			return nil
		},
	}
}

// stdin is shared by every prompt so buffered input is not lost between them.
var stdin *bufio.Reader

func prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	if stdin == nil {
		stdin = bufio.NewReader(cmd.InOrStdin())
	}
	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptSecret(cmd *cobra.Command, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(cmd, label)
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return string(secret), nil
}
