package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeroing/jwtauth"
	"github.com/zeroing/jwtauth/jwt"
	"github.com/zeroing/jwtauth/store/postgres"
)

// readPassword takes the flag value, or the first line of stdin when the flag is empty.
func readPassword(flag string, in io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required: pass --password or write it to stdin")
	}
	return line, nil
}

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage stored identities",
	}
	cmd.AddCommand(a.userAddCmd(), a.userResetCmd(), a.userDeleteCmd())
	return cmd
}

func (a *app) userAddCmd() *cobra.Command {
	var (
		pass  string
		roles []string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create or replace an identity with an Argon2id password hash",
		Long: "Create or replace an identity with an Argon2id password hash.\n\n" +
			"Replacing an existing identity records a password reset, so tokens issued before it stop validating.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(pass, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withEngine(func(e *jwtauth.Engine) error {
				u, err := e.CreateIdentity(cmd.Context(), args[0], pw, roles)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s roles=%s\n", u.Username(), strings.Join(u.Roles(), ","))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pass, "password", "", "password (default: read from stdin)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant, repeatable")
	return cmd
}

func (a *app) userResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <username>",
		Short: "Record a password reset; tokens created earlier stop validating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(e *jwtauth.Engine) error {
				at, err := e.RecordPasswordReset(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s at %s\n", args[0], at.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
				return nil
			})
		},
	}
}

func (a *app) userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Remove an identity; its tokens stop authenticating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func (a *app) loginCmd() *cobra.Command {
	var pass string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Verify a password and print a new token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(pass, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withEngine(func(e *jwtauth.Engine) error {
				token, err := e.Login(cmd.Context(), args[0], pw)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pass, "password", "", "password (default: read from stdin)")
	return cmd
}

func (a *app) authenticateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authenticate <token>",
		Short: "Check a token against its stored identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(e *jwtauth.Engine) error {
				u, err := e.Authenticate(cmd.Context(), args[0])
				if errors.Is(err, jwtauth.ErrUnauthorized) {
					return fmt.Errorf("rejected (%s): %w", jwt.KindOf(err), err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s roles=%s\n", u.Username(), strings.Join(u.Roles(), ","))
				return nil
			})
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the postgres identities table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Store.Driver != "postgres" {
				return fmt.Errorf("migrate requires the postgres driver, got %q", a.cfg.Store.Driver)
			}
			s, err := postgres.Open(a.cfg.Store.PostgresDSN)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "identities table ready")
			return nil
		},
	}
}
