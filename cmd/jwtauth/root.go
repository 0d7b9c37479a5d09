package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zeroing/jwtauth"
	"github.com/zeroing/jwtauth/jwt"
)

// app carries what PersistentPreRunE loads for every subcommand.
type app struct {
	configPath string
	cfg        jwtauth.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:          "jwtauth",
		Short:        "Issue and check HS512 identity tokens",
		Long:         `jwtauth signs, inspects, refreshes and validates tokens, and manages the identities they name.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./jwtauth.yaml or ./config/jwtauth.yaml)")

	root.AddCommand(
		a.issueCmd(),
		a.inspectCmd(),
		a.refreshCmd(),
		a.validateCmd(),
		a.loginCmd(),
		a.authenticateCmd(),
		a.userCmd(),
		a.migrateCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := jwtauth.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) codec() (*jwt.Codec, error) {
	return jwt.NewCodec(jwt.Config{
		Secret:     []byte(a.cfg.JWT.Secret),
		DefaultTTL: a.cfg.JWT.TTL,
		Logger:     a.logger,
	})
}
