package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/config"
	"github.com/digiurban/billing/internal/console"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "0.1.0"

type rootOptions struct {
	apiURL    string
	tokenPath string
	verbose   bool

	cfg   config.ConsoleConfig
	log   *zap.Logger
	store *console.FileTokenStore
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "billingctl",
		Short: "DigiUrban super-admin billing console",
		Long: `billingctl lists, filters and acts on municipal invoices through the
super-admin billing API. The bearer token is read from the token store on
every request; use "billingctl login" to save one.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", "", "billing API base URL (default $CONSOLE_API_URL)")
	cmd.PersistentFlags().StringVar(&opts.tokenPath, "token-file", "", "token store path (default $CONSOLE_TOKEN_PATH)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log requests and failures to stderr")

	cmd.AddCommand(
		newLoginCmd(opts),
		newListCmd(opts),
		newSummaryCmd(opts),
		newShowCmd(opts),
		newMarkPaidCmd(opts),
		newRemindCmd(opts),
		newCancelCmd(opts),
		newBulkCmd(opts),
		newExportCmd(opts),
	)
	return cmd
}

func (o *rootOptions) init() error {
	cfg := config.Load().Console
	if o.apiURL != "" {
		cfg.BaseURL = strings.TrimRight(o.apiURL, "/")
	}
	if o.tokenPath != "" {
		cfg.TokenPath = o.tokenPath
	}
	o.cfg = cfg
	o.store = console.NewFileTokenStore(cfg.TokenPath)

	log, err := newLogger(o.verbose)
	if err != nil {
		return err
	}
	o.log = log
	return nil
}

func (o *rootOptions) controller() *console.Controller {
	return console.New(console.Params{
		Log:    o.log,
		Clock:  clock.SystemClock{},
		Config: o.cfg,
		Tokens: o.store,
	})
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the operator bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(token) == "" {
				return fmt.Errorf("--token is required")
			}
			if err := opts.store.SetToken(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", opts.store.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", os.Getenv("DIGIURBAN_TOKEN"), "bearer token issued by \"digiurban token issue\"")
	return cmd
}
