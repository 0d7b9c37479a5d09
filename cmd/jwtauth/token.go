package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeroing/jwtauth/identity"
	"github.com/zeroing/jwtauth/jwt"
)

func (a *app) issueCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue <subject>",
		Short: "Sign a token for subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := a.codec()
			if err != nil {
				return err
			}
			token, err := codec.GenerateTokenWithTTL(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: jwt.ttl from config)")
	return cmd
}

type inspection struct {
	Subject   string         `json:"sub,omitempty"`
	Created   *time.Time     `json:"created,omitempty"`
	ExpiresAt *time.Time     `json:"exp,omitempty"`
	Expired   bool           `json:"expired"`
	Claims    map[string]any `json:"claims"`
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Verify a token's signature and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := a.codec()
			if err != nil {
				return err
			}
			claims, err := codec.Parse(args[0])
			if err != nil {
				return err
			}

			out := inspection{
				Subject: claims.Subject,
				Expired: codec.IsTokenExpired(args[0]),
				Claims:  claims.Raw(),
			}
			if claims.HasCreated() {
				created := claims.Created.UTC()
				out.Created = &created
			}
			if claims.HasExpiry() {
				exp := claims.ExpiresAt.UTC()
				out.ExpiresAt = &exp
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func (a *app) refreshCmd() *cobra.Command {
	var (
		ttl     time.Duration
		resetAt string
	)

	cmd := &cobra.Command{
		Use:   "refresh <token>",
		Short: "Re-issue a token with fresh created and exp claims",
		Long: `refresh re-signs a token without consulting a store. With --reset-at the token must
also be refreshable against that password reset instant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := a.codec()
			if err != nil {
				return err
			}
			if resetAt != "" {
				at, err := time.Parse(time.RFC3339, resetAt)
				if err != nil {
					return fmt.Errorf("--reset-at: %w", err)
				}
				if err := codec.CheckRefreshable(args[0], at); err != nil {
					return fmt.Errorf("not refreshable (%s): %w", jwt.KindOf(err), err)
				}
			}
			if ttl <= 0 {
				ttl = a.cfg.JWT.RefreshTTL
			}
			token, err := codec.RefreshToken(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "new lifetime (default: jwt.refresh_ttl from config)")
	cmd.Flags().StringVar(&resetAt, "reset-at", "", "last password reset, RFC3339")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var (
		username string
		resetAt  string
	)

	cmd := &cobra.Command{
		Use:   "validate <token>",
		Short: "Check a token against a username and optional password reset instant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := a.codec()
			if err != nil {
				return err
			}
			p := identity.Params{Username: username}
			if resetAt != "" {
				at, err := time.Parse(time.RFC3339, resetAt)
				if err != nil {
					return fmt.Errorf("--reset-at: %w", err)
				}
				p.LastPasswordReset = at
			}
			id, err := identity.New(p)
			if err != nil {
				return err
			}
			if err := codec.CheckToken(args[0], id); err != nil {
				return fmt.Errorf("invalid (%s): %w", jwt.KindOf(err), err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "expected subject")
	cmd.Flags().StringVar(&resetAt, "reset-at", "", "last password reset, RFC3339")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
