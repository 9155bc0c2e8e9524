package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/jonathan/longform-writer/internal/config"
	"github.com/jonathan/longform-writer/internal/server"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		pterm.Success.Printfln("Schema is up to date (%s)", cfg.Database.Driver)
		return nil
	},
}

var tokenTTL time.Duration
var tokenSubject string

var operatorTokenCmd = &cobra.Command{
	Use:   "operator-token",
	Short: "Mint a bearer token for the rescue and reset endpoints",
	Long: `Print an HS256 token with the operator role, signed with server.operator_secret
(LONGFORM_SERVER_OPERATOR_SECRET). Send it as "Authorization: Bearer <token>".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		jwtCfg, err := cfg.Server.JWT(tokenTTL)
		if err != nil {
			return err
		}
		token, err := server.NewJWTService(jwtCfg).GenerateToken(tokenSubject)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(os.Stderr, "expires in %s\n", jwtCfg.Expiration)
		return nil
	},
}

func init() {
	operatorTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", config.DefaultOperatorTokenTTL, "Token lifetime")
	operatorTokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Token subject, recorded in server logs")
	rootCmd.AddCommand(migrateCmd, operatorTokenCmd)
}
