// Command digiurban runs the billing API and scheduler in one process and
// carries the operator maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/digiurban/billing/internal/audit"
	"github.com/digiurban/billing/internal/auth"
	"github.com/digiurban/billing/internal/authorization"
	"github.com/digiurban/billing/internal/billingevent"
	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/config"
	"github.com/digiurban/billing/internal/invoice"
	"github.com/digiurban/billing/internal/migration"
	"github.com/digiurban/billing/internal/observability"
	"github.com/digiurban/billing/internal/providers"
	"github.com/digiurban/billing/internal/ratelimit"
	"github.com/digiurban/billing/internal/scheduler"
	"github.com/digiurban/billing/internal/server"
	"github.com/digiurban/billing/internal/tenant"
	"github.com/digiurban/billing/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var rootCmd = &cobra.Command{
	Use:           "digiurban",
	Short:         "DigiUrban super-admin billing service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd(), migrateCmd(), tokenCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the billing API and scheduler",
		Run: func(cmd *cobra.Command, args []string) {
			app := fx.New(
				infraOptions(),
				migration.Module,
				ratelimit.Module,

				tenant.Module,
				audit.Module,
				billingevent.Module,
				providers.Module,
				invoice.Module,

				authorization.Module,
				auth.Module,
				server.Module,
				scheduler.Module,
			)
			app.Run()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations (and demo data when DATABASE_SEED is set) then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infraOptions(),
				migration.Module,
				fx.NopLogger,
			)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			return app.Stop(ctx)
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage operator bearer tokens",
	}

	var (
		userID string
		email  string
		role   string
		ttl    time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for the billing console",
		Example: `  digiurban token issue --user 42 --email ops@digiurban.com.br --role super_admin
  billingctl login --token "$(digiurban token issue --user 42 --role billing_viewer)"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := auth.NewTokenService(config.Load(), clock.SystemClock{})
			if err != nil {
				return err
			}
			token, expiresAt, err := tokens.Issue(auth.Principal{
				UserID: userID,
				Email:  email,
				Role:   role,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	issue.Flags().StringVar(&userID, "user", "", "operator user id")
	issue.Flags().StringVar(&email, "email", "", "operator email")
	issue.Flags().StringVar(&role, "role", authorization.RoleSuperAdmin, "operator role (super_admin, billing_viewer)")
	issue.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("user")

	cmd.AddCommand(issue)
	return cmd
}

func infraOptions() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
